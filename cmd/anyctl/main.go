package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"anyplace_viewer/internal/adapters/anyplace"
	"anyplace_viewer/internal/adapters/observability"
	"anyplace_viewer/internal/app"
	"anyplace_viewer/internal/domain"
)

func main() {
	if err := newRootCmd(viper.New()).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(v *viper.Viper) *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:           "anyctl",
		Short:         "Query an Anyplace backend from the terminal",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(c *cobra.Command, args []string) error {
			if configFile != "" {
				v.SetConfigFile(configFile)
				if err := v.ReadInConfig(); err != nil {
					return fmt.Errorf("read config %s: %w", configFile, err)
				}
			}
			log.Logger = observability.NewLogger(v.GetString("env"))
			if !v.GetBool("verbose") {
				log.Logger = log.Logger.Level(zerolog.WarnLevel)
			}
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&configFile, "config", "c", "", "optional config file (json, yaml or toml)")
	pf.String("base", "https://ap.cs.ucy.ac.cy:44", "Anyplace backend base URL")
	pf.String("campus", "ucy", "campus id (cuid)")
	pf.Int("rps", 5, "max requests per second")
	pf.Duration("timeout", 15*time.Second, "per-command timeout")
	pf.String("env", "dev", "log format: dev for console, anything else for JSON")
	pf.BoolP("verbose", "v", false, "log at info level")

	v.SetEnvPrefix("ANYPLACE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	_ = v.BindPFlags(pf)

	root.AddCommand(newBuildingsCmd(v), newSearchCmd(v))
	return root
}

func newClient(v *viper.Viper) (*anyplace.Client, error) {
	return anyplace.New(v.GetString("base"), v.GetInt("rps"), 4)
}

func newBuildingsCmd(v *viper.Viper) *cobra.Command {
	var (
		order    string
		lat, lng float64
		filter   string
	)
	cmd := &cobra.Command{
		Use:   "buildings",
		Short: "List the campus buildings",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			mode, ok := app.ParseOrderMode(order)
			if !ok {
				return fmt.Errorf("unknown order %q", order)
			}
			client, err := newClient(v)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(c.Context(), v.GetDuration("timeout"))
			defer cancel()

			list, err := client.ListBuildings(ctx, v.GetString("campus"))
			if err != nil {
				return fmt.Errorf("list buildings: %w", err)
			}
			bs := app.OrderBuildings(app.FilterBuildings(list.Buildings, filter), mode, domain.LatLng{Lat: lat, Lng: lng}, false)
			printBuildings(c.OutOrStdout(), bs)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&order, "order", "name", "name or distance")
	f.Float64Var(&lat, "lat", 0, "latitude of the distance origin")
	f.Float64Var(&lng, "lng", 0, "longitude of the distance origin")
	f.StringVarP(&filter, "filter", "f", "", "case-insensitive name filter")
	return cmd
}

func newSearchCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "search [text]",
		Short: "Search campus POIs; without text, list them all",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			client, err := newClient(v)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(c.Context(), v.GetDuration("timeout"))
			defer cancel()

			campus := v.GetString("campus")
			list, err := client.ListBuildings(ctx, campus)
			if err != nil {
				return fmt.Errorf("list buildings: %w", err)
			}
			q := domain.PoiQuery{Campus: campus, Greeklish: list.Greeklish}
			if len(args) == 1 {
				q.Letters = args[0]
			}
			pois, err := client.SearchPois(ctx, q)
			if err != nil {
				return fmt.Errorf("search pois: %w", err)
			}
			printPois(c.OutOrStdout(), app.AnnotatePois(pois, app.BuildingNames(list.Buildings)))
			return nil
		},
	}
}

func printBuildings(w io.Writer, bs []domain.Building) {
	for _, b := range bs {
		if b.HasCoords {
			fmt.Fprintf(w, "%s\t%s\t%.6f,%.6f\n", b.ID, b.Name, b.Lat, b.Lon)
		} else {
			fmt.Fprintf(w, "%s\t%s\t-\n", b.ID, b.Name)
		}
	}
}

func printPois(w io.Writer, pois []domain.POI) {
	for _, p := range pois {
		fmt.Fprintf(w, "%s\t%s\t%s\tfloor %s\n", p.ID, p.Name, p.BuildingName, p.FloorNumber)
	}
}
