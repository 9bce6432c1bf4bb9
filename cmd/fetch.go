package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/portfolio-cli/internal/model"
)

var fetchFlags struct {
	id      string
	name    string
	domain  string
	ctype   string
	ticker  string
	token   string
	types   []string
	force   bool
}

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch data for one company and print the normalized record",
	RunE: func(cmd *cobra.Command, args []string) error {
		company := model.Company{
			ID:          fetchFlags.id,
			Name:        fetchFlags.name,
			Domain:      fetchFlags.domain,
			Type:        model.CompanyType(fetchFlags.ctype),
			Ticker:      fetchFlags.ticker,
			TokenSymbol: fetchFlags.token,
		}
		if company.ID == "" {
			return eris.New("--id is required")
		}
		switch company.Type {
		case model.CompanyCrypto, model.CompanyPrivate, model.CompanyPublic:
		default:
			return eris.Errorf("unknown company type %q", fetchFlags.ctype)
		}

		types, err := model.ParseDataTypes(fetchFlags.types)
		if err != nil {
			return err
		}

		e, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		result, err := e.Service.FetchCompanyData(cmd.Context(), company, types, fetchFlags.force)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	fetchCmd.Flags().StringVar(&fetchFlags.id, "id", "", "company identifier (required)")
	fetchCmd.Flags().StringVar(&fetchFlags.name, "name", "", "company name")
	fetchCmd.Flags().StringVar(&fetchFlags.domain, "domain", "", "company website domain")
	fetchCmd.Flags().StringVar(&fetchFlags.ctype, "type", "private", "company type: crypto, private, public")
	fetchCmd.Flags().StringVar(&fetchFlags.ticker, "ticker", "", "equity ticker for public companies")
	fetchCmd.Flags().StringVar(&fetchFlags.token, "token", "", "token symbol for crypto companies")
	fetchCmd.Flags().StringSliceVar(&fetchFlags.types, "types", nil, "data types to fetch (default: all)")
	fetchCmd.Flags().BoolVar(&fetchFlags.force, "force", false, "bypass fresh cache and refetch")
	rootCmd.AddCommand(fetchCmd)
}
