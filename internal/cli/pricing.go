package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var pricingCmd = &cobra.Command{
	Use:   "pricing",
	Short: "Inspect AI model pricing tables",
}

var pricingListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all providers and their priced models",
	RunE:  runPricingList,
}

func init() {
	rootCmd.AddCommand(pricingCmd)
	pricingCmd.AddCommand(pricingListCmd)
}

func runPricingList(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	registry, err := initRegistry(cfg)
	if err != nil {
		return err
	}

	names := registry.List()
	if len(names) == 0 {
		fmt.Println("No providers configured. Check pricing directory in config.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "PROVIDER\tMODEL\tINPUT (/1M)\tOUTPUT (/1M)\tCACHED INPUT (/1M)\n")
	for _, name := range names {
		p, err := registry.Get(name)
		if err != nil {
			return err
		}
		for _, m := range p.Models() {
			in, out, cached, _ := p.Prices(m)
			fmt.Fprintf(w, "%s\t%s\t%s %s\t%s %s\t%s %s\n",
				p.Name(), m,
				in.Decimal(), p.Currency(),
				out.Decimal(), p.Currency(),
				cached.Decimal(), p.Currency(),
			)
		}
	}
	w.Flush()

	return nil
}
