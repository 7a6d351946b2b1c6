package main

import (
	"io"
	"os"

	nested "github.com/antonfisher/nested-logrus-formatter"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const version = "GpkgTiler/1.0"

var cf string

var rootCmd = &cobra.Command{
	Use:     "gpkgtiler",
	Short:   "Export a grid of basemap tiles into one GeoPackage",
	Long:    "Carve an extent into a grid, give every cell its own ground resolution and write each cell as a raster table of a GeoPackage.",
	Version: version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		initConf(cf)
		initLog(conf.Log)
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cf, "config", "c", "conf.toml", "set config `file`")
	rootCmd.AddCommand(exportCmd, serveCmd, inspectCmd)
}

// initLog writes to the log file and the screen at the same time.
func initLog(lc logConf) {
	log.SetFormatter(&nested.Formatter{
		HideKeys:        true,
		ShowFullLevel:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})
	writers := []io.Writer{os.Stdout}
	if lc.File != "" {
		file, err := os.OpenFile(lc.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err == nil {
			writers = append(writers, file)
		} else {
			log.Warnf("failed to log to file %s ~ %s", lc.File, err)
		}
	}
	log.SetOutput(io.MultiWriter(writers...))
	level, err := log.ParseLevel(lc.Level)
	if err != nil {
		level = log.DebugLevel
	}
	log.SetLevel(level)
}

func main() {
	cobra.CheckErr(rootCmd.Execute())
}
