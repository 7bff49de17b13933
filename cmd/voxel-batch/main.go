// Command voxel-batch voxelizes every scan position of a RISCAN project
// over a shared domain derived from the sensor positions, then optionally
// combines the grids with the multi-position linear model into plant area
// and cover profiles.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/banshee-data/canopy.report/internal/batch"
	"github.com/banshee-data/canopy.report/internal/report"
	"github.com/banshee-data/canopy.report/internal/riscan"
	"github.com/banshee-data/canopy.report/internal/rundb"
	"github.com/banshee-data/canopy.report/internal/version"
	"github.com/banshee-data/canopy.report/internal/voxel"
)

var (
	output    = flag.String("o", "voxel_output", "output directory for voxel grids")
	voxelsize = flag.Float64("voxelsize", 1.0, "voxel grid resolution in meters")
	buffer    = flag.Float64("buffer", 5, "buffer to extend voxel bounds in meters")
	hmax      = flag.Float64("hmax", 50, "maximum tree height in meters")
	dtm       = flag.String("dtm", "", "path to DTM file (same coordinate system as the TLS data)")
	noCounts  = flag.Bool("no-counts", false, "don't save hit/miss/occluded count grids")
	minN      = flag.Int("min-n", 3, "minimum number of Pgap observations required to estimate PAI")
	runModel  = flag.Bool("run-model", false, "run the linear model to derive PAI and cover profiles after voxelization")
	weighted  = flag.Bool("weighted", false, "use the weighted linear model (applies with -run-model)")
	noDB      = flag.Bool("no-db", false, "don't record this run in the output run index")

	showVersion = flag.Bool("version", false, "print version and exit")
)

func main() {
	os.Exit(run())
}

func run() int {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(),
			"usage: %s [flags] <project.RiSCAN>\n\nBatch voxelization for all scans in a RISCAN project.\n\n",
			filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()
	if *showVersion {
		fmt.Printf("voxel-batch %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return 0
	}
	if flag.NArg() != 1 {
		flag.Usage()
		return 2
	}
	root := flag.Arg(0)

	log.Printf("Scanning RISCAN project: %s", root)
	project, err := riscan.Open(root, nil)
	if err != nil {
		log.Printf("%v", err)
		return 1
	}

	sets, skipped, err := project.Discover(riscan.VoxelMode)
	if err != nil {
		log.Printf("%v", err)
		return 1
	}
	log.Printf("Found %d scan positions", len(sets)+len(skipped))
	if len(skipped) > 0 {
		log.Printf("%d skipped", len(skipped))
	}
	log.Printf("Processing %d scans with valid file sets", len(sets))

	log.Printf("Computing voxelization bounds...")
	bounds, _, err := riscan.ReadProjectBounds(nil, sets, *buffer, *hmax)
	if err != nil {
		log.Printf("%v", err)
		return 1
	}
	log.Printf("Bounds: %s", bounds)

	cfg := voxel.NewConfig(bounds, *voxelsize, *dtm)

	if _, err := report.NewWriter(nil, *output); err != nil {
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
			runID, err = db.BeginRun("voxel", project.Name(), *output, map[string]any{
				"voxelsize": *voxelsize,
				"buffer":    *buffer,
				"hmax":      *hmax,
				"dtm":       *dtm,
				"min_n":     *minN,
				"weighted":  *weighted,
			})
			if err != nil {
				log.Printf("warning: %v", err)
			}
		}
	}

	log.Printf("Voxelizing scans...")
	outcomes := batch.Run(sets, func(fset riscan.FileSet) ([]string, error) {
		return voxel.VoxelizePosition(nil, nil, fset, cfg, *output, !*noCounts)
	})

	for _, o := range outcomes {
		if db != nil && runID != "" {
			if err := db.RecordOutcome(runID, o.Position, o.ScanName, o.Err); err != nil {
				log.Printf("warning: %v", err)
			}
		}
		if !o.Failed() {
			cfg.Positions[o.ScanName] = o.Payload
		}
	}

	configPath := filepath.Join(*output, project.Name()+"_config.json")
	if err := cfg.Write(nil, configPath); err != nil {
		log.Printf("%v", err)
		return 1
	}
	log.Printf("Saved configuration to %s", configPath)

	tally, noWork := batch.Count(outcomes)
	log.Printf("Voxelization complete: %d successful, %d failed", tally.Succeeded, tally.Failed)
	if db != nil && runID != "" {
		if err := db.FinishRun(runID, tally.Attempted, tally.Succeeded, tally.Failed); err != nil {
			log.Printf("warning: %v", err)
		}
	}
	if noWork != nil {
		log.Printf("No scans voxelized successfully")
		return 1
	}

	if *runModel {
		log.Printf("Running linear model to derive PAI and cover profiles...")
		model, err := voxel.NewModel(nil, configPath)
		if err != nil {
			log.Printf("Error running model: %v", err)
			return 1
		}
		res, err := model.Run(*minN, *weighted)
		if err != nil {
			log.Printf("Error running model: %v", err)
			return 1
		}

		modelDir := filepath.Join(*output, "model_output")
		if err := model.SaveOutputs(modelDir, res); err != nil {
			log.Printf("Error running model: %v", err)
			return 1
		}
		log.Printf("Saved model outputs to %s", modelDir)
	}

	return 0
}
