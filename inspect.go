package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"GpkgTiler/gpkg"

	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <file.gpkg>",
	Short: "List the raster tables of a GeoPackage",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return inspect(cmd.Context(), args[0], cmd.OutOrStdout())
	},
}

func inspect(ctx context.Context, path string, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, err := os.Stat(path); err != nil {
		return err
	}
	c, err := gpkg.Open(path, gpkg.ReadOnly())
	if err != nil {
		return err
	}
	defer c.Close()
	tables, err := c.Tables(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TABLE\tSRS\tSIZE\tLEVELS\tTILES\tBOUNDS")
	for _, t := range tables {
		width, height, err := c.RasterSize(ctx, t.Name)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\tEPSG:%d\t%dx%d\t%d\t%d\t%.3f,%.3f,%.3f,%.3f\n", t.Name, t.SRSID, width, height,
			t.Levels, t.Tiles, t.Bound.Min[0], t.Bound.Min[1], t.Bound.Max[0], t.Bound.Max[1])
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "%d raster tables in %s\n", len(tables), path)
	return nil
}
