package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/fatih/color"

	"sweep/api"
	"sweep/app"
	"sweep/config"
	"sweep/data"
	"sweep/live"
	"sweep/places"
)

var EnvFlag = flag.String("env", "dev", "Set the environment")
var ServeFlag = flag.Bool("serve", false, "Run the server")
var AddressFlag = flag.String("address", ":8080", "Address for server")
var ProviderFlag = flag.String("provider", "", "Places backend: google or places-v1 (default from SWEEP_PROVIDER)")

// one-shot search
var LatFlag = flag.Float64("lat", 0, "Latitude of the search centre")
var LngFlag = flag.Float64("lng", 0, "Longitude of the search centre")
var RadiusFlag = flag.Float64("radius", 0, "Search radius in metres")
var TypeFlag = flag.String("type", "", "Place type, e.g. park")
var KeywordFlag = flag.String("keyword", "", "Keyword to match")
var MinRatingFlag = flag.Float64("min-rating", -1, "Lowest accepted rating")
var MinRatingCountFlag = flag.Int("min-rating-count", -1, "Reviews required (exclusive)")
var InFlag = flag.String("in", "", "Progress file to resume from")
var OutFlag = flag.String("out", "", "Write a progress file here")
var KMLFlag = flag.String("kml", "", "Write the places as KML (or KMZ if the name ends in .kmz)")

func main() {
	flag.Parse()

	cfg := config.Default()
	if *ProviderFlag != "" && *ProviderFlag != cfg.Provider {
		cfg.Provider = *ProviderFlag
		if os.Getenv("SWEEP_SATURATION_LIMIT") == "" {
			cfg.SaturationLimit = 60
			if cfg.Provider == "places-v1" {
				cfg.SaturationLimit = 20
			}
		}
	}
	data.SetDir(cfg.DataDir)

	provider, err := newProvider(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "provider:", err)
		os.Exit(1)
	}

	defaults := places.DefaultPrefs()
	defaults.Radius = cfg.DefaultRadius
	defaults.Type = cfg.DefaultType
	defaults.MinRating = cfg.DefaultMinRating
	defaults.MinRatingCount = cfg.DefaultMinRatingCount

	opts := engineOptions(cfg)

	if !*ServeFlag {
		if err := runOnce(provider, opts, defaults); err != nil {
			color.Red("error: %v", err)
			os.Exit(1)
		}
		return
	}

	hub := live.NewHub()
	opts.Notifier = hub
	engine := places.NewEngine(provider, places.NewLedger(), opts)

	idx, err := places.NewIndex(engine.Ledger())
	if err != nil {
		app.Log("main", "text index disabled: %v", err)
	}
	srv := places.NewServer(engine, idx, defaults)

	app.ChecksFunc = func() []app.StatusCheck {
		last := engine.LastReport()
		details := "no search yet"
		healthy := true
		if last != nil {
			details = fmt.Sprintf("%d nodes, %d new places, %d failures", last.Nodes, last.Inserted, last.Failures)
			healthy = last.Failures == 0
		}
		return []app.StatusCheck{
			{Name: "Provider", Status: true, Details: cfg.Provider},
			{Name: "Engine", Status: true, Details: engine.State().String()},
			{Name: "Places", Status: true, Details: fmt.Sprintf("%d places, %d areas", engine.Ledger().Len(), len(engine.SearchAreas()))},
			{Name: "Last search", Status: healthy, Details: details},
			{Name: "Live clients", Status: true, Details: fmt.Sprint(hub.Clients())},
		}
	}

	// render the usage page
	md := api.Markdown()
	homeHTML := app.RenderHTML("Sweep", "Recursive nearby place search", string(app.Render([]byte(md))))

	// serve the places map and actions
	srv.Register(http.DefaultServeMux)

	// live search feed
	http.HandleFunc("/places/live", hub.Handler)

	// server status
	http.HandleFunc("/status", app.StatusHandler)

	// serve the usage page
	http.Handle("/", app.ServeHTML(homeHTML))

	app.Log("main", "Starting server on %s (provider %s)", *AddressFlag, cfg.Provider)

	if err := http.ListenAndServe(*AddressFlag, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if *EnvFlag == "dev" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
		}

		if v := len(r.URL.Path); v > 1 && strings.HasSuffix(r.URL.Path, "/") {
			r.URL.Path = r.URL.Path[:v-1]
		}

		http.DefaultServeMux.ServeHTTP(w, r)
	})); err != nil {
		fmt.Printf("Server error: %v\n", err)
		return
	}
}

// engineOptions maps the configuration onto the engine. A configured depth
// of zero means no subdivision rather than the engine default.
func engineOptions(cfg config.Config) places.Options {
	opts := places.Options{
		MaxDepth:             cfg.MaxDepth,
		SaturationLimit:      cfg.SaturationLimit,
		MinSplitRadius:       cfg.MinSplitRadius,
		PageDelay:            cfg.PageDelay,
		QueryTimeout:         cfg.QueryTimeout,
		MaxConcurrentQueries: cfg.MaxConcurrentQueries,
	}
	if cfg.MaxDepth <= 0 {
		opts.MaxDepth = places.NoSubdivision
	}
	return opts
}

func newProvider(cfg config.Config) (places.Provider, error) {
	switch cfg.Provider {
	case "google", "":
		return places.NewGoogleProvider(cfg.GoogleAPIKey)
	case "places-v1":
		return places.NewPlacesV1Provider(context.Background(), cfg.GoogleAPIKey)
	}
	return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
}

// runOnce runs a single search from the command line and writes the
// requested exports.
func runOnce(provider places.Provider, opts places.Options, defaults places.Prefs) error {
	prefs := places.LoadPrefs(defaults)
	center := prefs.Center
	if *LatFlag != 0 || *LngFlag != 0 {
		center = places.LatLng{Lat: *LatFlag, Lng: *LngFlag}
	}
	radius := prefs.Radius
	if *RadiusFlag > 0 {
		radius = *RadiusFlag
	}
	filters := prefs.Filters()
	if *TypeFlag != "" {
		filters.Type = *TypeFlag
	}
	if *KeywordFlag != "" {
		filters.Keyword = *KeywordFlag
	}
	if *MinRatingFlag >= 0 {
		filters.MinRating = *MinRatingFlag
	}
	if *MinRatingCountFlag >= 0 {
		filters.MinRatingCount = *MinRatingCountFlag
	}
	filters = places.CleanFilters(filters)

	progress := &progressPrinter{}
	opts.Notifier = progress
	engine := places.NewEngine(provider, places.NewLedger(), opts)

	if *InFlag != "" {
		f, err := os.Open(*InFlag)
		if err != nil {
			return err
		}
		_, err = engine.Import(f)
		f.Close()
		if err != nil {
			return err
		}
		color.Cyan("resumed %d places from %s", engine.Ledger().Len(), *InFlag)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	color.Cyan("searching %s within %.0fm for %q", center, radius, filters.Type)
	report, err := engine.Search(ctx, center, radius, filters)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	fmt.Println()
	printReport(report)

	if *OutFlag != "" {
		if err := writeFile(*OutFlag, func(f *os.File) error {
			return places.WriteSnapshot(f, engine.Ledger().Snapshot())
		}); err != nil {
			return err
		}
		color.Green("progress saved to %s", *OutFlag)
	}
	if *KMLFlag != "" {
		write := places.WriteKML
		if strings.HasSuffix(strings.ToLower(*KMLFlag), ".kmz") {
			write = places.WriteKMZ
		}
		if err := writeFile(*KMLFlag, func(f *os.File) error {
			return write(f, engine.Places())
		}); err != nil {
			return err
		}
		color.Green("places exported to %s", *KMLFlag)
	}

	if err == nil {
		prefs.Center = center
		prefs.Radius = radius
		prefs.Type = filters.Type
		prefs.Keyword = filters.Keyword
		prefs.MinRating = filters.MinRating
		prefs.MinRatingCount = filters.MinRatingCount
		if err := places.SavePrefs(prefs); err != nil {
			app.Log("main", "prefs: %v", err)
		}
	}
	return nil
}

func writeFile(path string, fn func(f *os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}

func printReport(r *places.Report) {
	if r == nil {
		return
	}
	bold := color.New(color.Bold)
	bold.Printf("%d new places", r.Inserted)
	fmt.Printf(" from %d results over %d areas (%d requests, depth %d) in %v\n",
		r.Fetched, r.Nodes, r.Requests, r.MaxDepthReached, r.Duration.Round(time.Millisecond))
	if r.Failures > 0 {
		color.Yellow("%d queries failed; their areas were not fully searched", r.Failures)
	}
	if r.Warning != "" {
		color.Yellow("%s", r.Warning)
	}
}

// progressPrinter draws a dot per searched area and a plus per new place.
type progressPrinter struct{}

func (progressPrinter) PlaceAdded(p places.Place) {
	color.New(color.FgGreen).Print("+")
}

func (progressPrinter) SearchAreaAdded(a places.SearchArea) {
	fmt.Print(".")
}

func (progressPrinter) Warn(msg string) {}

func (progressPrinter) SearchDone(r *places.Report) {}
