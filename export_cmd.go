package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"GpkgTiler/export"
	"GpkgTiler/gpkg"
	"GpkgTiler/notify"

	pb "github.com/cheggaaa/pb/v3"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the configured grid into a GeoPackage",
	Long:  "Build the grid from the config, apply its edits and write every cell as an image_tile<N> raster table.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if out, _ := cmd.Flags().GetString("output"); out != "" {
			conf.Output.Path = out
		}
		if cmd.Flags().Changed("overviews") {
			conf.Export.Overviews, _ = cmd.Flags().GetBool("overviews")
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		res, err := runExport(ctx, conf)
		if err != nil {
			return err
		}
		for _, t := range res.Failed() {
			if t.Err != nil {
				fmt.Printf("  %s: %s\n", t.Table, t.Err)
			} else {
				fmt.Printf("  %s overviews: %s\n", t.Table, t.OverviewErr)
			}
		}
		if res.Status == export.NoTilesWritten {
			return fmt.Errorf("no tiles written to %s", conf.Output.Path)
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().StringP("output", "o", "", "override output.path")
	exportCmd.Flags().Bool("overviews", false, "build 2,4,8,16 overviews for every table")
}

func newRequest(c Config) (*export.Request, error) {
	working, target, err := c.systems()
	if err != nil {
		return nil, err
	}
	src, err := c.newSource()
	if err != nil {
		return nil, err
	}
	g, err := c.buildGrid(working)
	if err != nil {
		return nil, err
	}
	req, err := export.NewRequest(src, g, c.Output.Path, working, target, c.Export.Overviews)
	if err != nil {
		return nil, err
	}
	if req.Resampling, err = gpkg.ParseResampling(c.Export.Resampling); err != nil {
		return nil, err
	}
	req.Container = c.containerOptions()
	return req, nil
}

// runExport runs one export with a terminal progress bar, and publishes its
// events to redis when an address is configured.
func runExport(ctx context.Context, c Config) (export.Result, error) {
	start := time.Now()
	req, err := newRequest(c)
	if err != nil {
		return export.Result{}, err
	}
	task := export.NewTask(req, c.Export.EventBuffer)

	bar := pb.New(task.Total()).Set("prefix", fmt.Sprintf("Task %s : ", task.ID[:8]))
	bar.Start()
	handlers := []export.Handler{func(ev export.Event) {
		switch ev.Kind {
		case export.EventCurrent:
			bar.Increment()
			log.Debugf("task %s tile %s", task.ID, ev.Label)
		case export.EventDone:
			bar.Finish()
		}
	}}
	if c.Redis.Addr != "" {
		pub := notify.NewPublisher(notify.NewPool(c.Redis.Addr), c.Redis.Channel)
		defer pub.Close()
		handlers = append(handlers, pub.Handler(task.ID))
		log.Infof("publishing task events on %s", pub.Channel(task.ID))
	}

	if err := task.Start(ctx); err != nil {
		return export.Result{}, err
	}
	res := export.Drain(task.Events(), handlers...)
	if res == nil {
		return export.Result{}, fmt.Errorf("task %s ended without a result", task.ID)
	}
	written := 0
	for _, t := range res.Tiles {
		if t.Written() {
			written++
		}
	}
	fmt.Printf("\n%s: %d/%d tables written to %s in %.3fs\n", res.Status, written, len(res.Tiles),
		c.Output.Path, time.Since(start).Seconds())
	return *res, nil
}
