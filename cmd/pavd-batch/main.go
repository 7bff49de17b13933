// Command pavd-batch processes every scan position of a RISCAN project into
// vertical plant area profiles and writes a project summary plus one
// profile table per position.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/banshee-data/canopy.report/internal/batch"
	"github.com/banshee-data/canopy.report/internal/canopy"
	"github.com/banshee-data/canopy.report/internal/report"
	"github.com/banshee-data/canopy.report/internal/riscan"
	"github.com/banshee-data/canopy.report/internal/rundb"
	"github.com/banshee-data/canopy.report/internal/version"
)

var (
	output      = flag.String("o", "pavd_output", "output directory for results")
	hres        = flag.Float64("hres", 0.5, "vertical height bin resolution in meters")
	zres        = flag.Float64("zres", 5, "zenith angle bin resolution in degrees")
	ares        = flag.Float64("ares", 90, "azimuth angle bin resolution in degrees")
	minZenith   = flag.Float64("min-zenith", 35, "minimum zenith angle in degrees")
	maxZenith   = flag.Float64("max-zenith", 70, "maximum zenith angle in degrees")
	minHeight   = flag.Float64("min-height", 0, "minimum height in meters")
	maxHeight   = flag.Float64("max-height", 50, "maximum height in meters")
	reflectance = flag.Float64("reflectance-threshold", -20, "minimum reflectance threshold")
	method      = flag.String("method", "WEIGHTED", "Pgap estimation method (WEIGHTED, FIRST or ALL)")
	plotFlag    = flag.Bool("plot", false, "also render a PAVD profile PNG per position")
	noDB        = flag.Bool("no-db", false, "don't record this run in the output run index")
	showVersion = flag.Bool("version", false, "print version and exit")
)

func main() {
	os.Exit(run())
}

func run() int {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(),
			"usage: %s [flags] <project.RiSCAN>\n\nBatch process PAVD profiles for all scans in a RISCAN project.\n\n",
			filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()
	if *showVersion {
		fmt.Printf("pavd-batch %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return 0
	}
	if flag.NArg() != 1 {
		flag.Usage()
		return 2
	}
	root := flag.Arg(0)

	pgapMethod, err := canopy.ParseMethod(*method)
	if err != nil {
		log.Printf("%v", err)
		return 2
	}
	params := canopy.Params{
		HeightRes:            *hres,
		ZenithRes:            *zres,
		AzimuthRes:           *ares,
		MinZenith:            *minZenith,
		MaxZenith:            *maxZenith,
		MinHeight:            *minHeight,
		MaxHeight:            *maxHeight,
		ReflectanceThreshold: *reflectance,
		Method:               pgapMethod,
	}

	log.Printf("Scanning RISCAN project: %s", root)
	project, err := riscan.Open(root, nil)
	if err != nil {
		log.Printf("%v", err)
		return 1
	}

	sets, skipped, err := project.Discover(riscan.ProfileMode)
	if err != nil {
		log.Printf("%v", err)
		return 1
	}
	log.Printf("Found %d scan positions", len(sets)+len(skipped))
	if len(skipped) > 0 {
		log.Printf("%d skipped", len(skipped))
	}
	log.Printf("Processing %d scans with valid file sets", len(sets))

	writer, err := report.NewWriter(nil, *output)
	if err != nil {
		log.Printf("%v", err)
		return 1
	}

	var db *rundb.DB
	var runID string
	if !*noDB {
		db, err = rundb.NewDB(filepath.Join(*output, "runs.db"))
		if err != nil {
			log.Printf("warning: run index unavailable: %v", err)
		} else {
			defer db.Close()
			runID, err = db.BeginRun("profile", project.Name(), *output, params)
			if err != nil {
				log.Printf("warning: %v", err)
			}
		}
	}

	engine := &canopy.Engine{}
	outcomes := batch.Run(sets, func(fset riscan.FileSet) (*canopy.ProfileResult, error) {
		return engine.ProcessPosition(fset, params)
	})

	if db != nil && runID != "" {
		for _, o := range outcomes {
			if err := db.RecordOutcome(runID, o.Position, o.ScanName, o.Err); err != nil {
				log.Printf("warning: %v", err)
			}
		}
	}

	tally, noWork := batch.Count(outcomes)
	log.Printf("Processing complete: %d successful, %d failed", tally.Succeeded, tally.Failed)
	if db != nil && runID != "" {
		if err := db.FinishRun(runID, tally.Attempted, tally.Succeeded, tally.Failed); err != nil {
			log.Printf("warning: %v", err)
		}
	}
	if noWork != nil {
		log.Printf("No scans processed successfully")
		return 1
	}

	var results []*canopy.ProfileResult
	for _, o := range batch.Successes(outcomes) {
		results = append(results, o.Payload)
	}

	summaryPath, err := writer.WriteProfileSummary(results)
	if err != nil {
		log.Printf("%v", err)
		return 1
	}
	log.Printf("Saved summary to %s", summaryPath)

	for _, r := range results {
		if _, err := writer.WriteProfileDetail(r); err != nil {
			log.Printf("%v", err)
			return 1
		}
		if *plotFlag {
			if _, err := writer.WriteProfilePlot(r); err != nil {
				log.Printf("warning: %v", err)
			}
		}
	}
	log.Printf("Saved %d detailed profile files to %s", len(results), writer.Dir())

	return 0
}
