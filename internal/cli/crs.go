package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/meazyme/v-allo/pkg/pipeline"
	"github.com/meazyme/v-allo/pkg/projection"
)

// crsCommand creates the crs command listing the built-in EPSG codes.
func (c *CLI) crsCommand() *cobra.Command {
	var showDefs bool

	cmd := &cobra.Command{
		Use:   "crs",
		Short: "List the built-in coordinate reference systems",
		Long: `List the EPSG codes vallo resolves without a WKT or PROJ.4 definition.

Other systems can still be used by passing a PROJ.4 string or the WKT of a
shapefile .prj as --crs, --nodes-crs or --regions-crs. Only planar systems
are valid computation targets.`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			printCRSTable(projection.Registry(), showDefs)
		},
	}

	cmd.Flags().BoolVar(&showDefs, "proj", false, "show PROJ.4 definitions")

	return cmd
}

func printCRSTable(entries []projection.Entry, showDefs bool) {
	headers := []string{"Code", "Name", "Planar"}
	if showDefs {
		headers = append(headers, "Definition")
	}
	rows := make([][]string, len(entries))
	for i, e := range entries {
		planar := "no"
		if e.Planar {
			planar = "yes"
		}
		row := []string{projection.Canonical(e.Code), e.Name, planar}
		if showDefs {
			row = append(row, e.Def)
		}
		rows[i] = row
	}
	printNewline()
	printTable(headers, rows)
	printNewline()
	printKeyValue("Default target", pipeline.DefaultCRS)
	printNextStep("Use another target", "vallo allocate --crs EPSG:25832 ...")
}

// completeCRS suggests registry codes for the CRS flags. planarOnly limits
// the list to valid computation targets.
func completeCRS(planarOnly bool) func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	return func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		var out []string
		for _, e := range projection.Registry() {
			if planarOnly && !e.Planar {
				continue
			}
			code := projection.Canonical(e.Code)
			if strings.HasPrefix(strings.ToUpper(code), strings.ToUpper(toComplete)) {
				out = append(out, code+"\t"+e.Name)
			}
		}
		return out, cobra.ShellCompDirectiveNoFileComp
	}
}
