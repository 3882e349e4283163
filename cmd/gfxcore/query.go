package main

import (
	"context"
	"fmt"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/urfave/cli/v3"
	"github.com/vkngwrapper/gfxcore/ioctl"
	"golang.org/x/exp/slog"
)

var engineClassNames = map[uint16]string{
	ioctl.EngineClassRender:       "rcs",
	ioctl.EngineClassCopy:         "bcs",
	ioctl.EngineClassVideo:        "vcs",
	ioctl.EngineClassVideoEnhance: "vecs",
	ioctl.EngineClassCompute:      "ccs",
}

func engineName(engine ioctl.EngineClassInstance) string {
	name, ok := engineClassNames[engine.EngineClass]
	if !ok {
		name = fmt.Sprintf("class%d", engine.EngineClass)
	}
	return fmt.Sprintf("%s%d", name, engine.EngineInstance)
}

func regionName(region ioctl.MemoryClassInstance) string {
	if region.MemoryClass == ioctl.MemoryClassSystem {
		return fmt.Sprintf("system%d", region.MemoryInstance)
	}
	return fmt.Sprintf("device%d", region.MemoryInstance)
}

func queryCmd() *cli.Command {
	var (
		devicePath string
		sysman     bool
	)

	return &cli.Command{
		Name:  "query",
		Usage: "Query memory regions and engine topology from an i915 render node",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "device", Usage: "render node to open", Value: "/dev/dri/renderD128", Destination: &devicePath},
			&cli.BoolFlag{Name: "sysman", Usage: "list every engine class, not only the ones compute submits to", Destination: &sysman},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			logger, err := newLogger()
			if err != nil {
				return err
			}
			flags, err := loadFlags(logger)
			if err != nil {
				return err
			}

			drm, err := ioctl.OpenFileDrm(devicePath)
			if err != nil {
				return err
			}
			defer func() { _ = drm.Close() }()

			device := ioctl.NewDevice(drm, ioctl.NewRegistry(flags, logger), flags, logger)
			if !device.QueryMemoryInfo() {
				logger.LogAttrs(ctx, slog.LevelWarn, "memory region query failed", slog.String("device", devicePath))
			}
			if !device.QueryEngineInfo(sysman) {
				return errors.Newf("engine info query failed on %s", devicePath)
			}

			if jsonOutput {
				_, err = os.Stdout.Write(append(topologyJSON(device), '\n'))
				return err
			}
			printTopology(device)
			return nil
		},
	}
}

func printTopology(device *ioctl.Device) {
	fmt.Printf("Product:  %s\n", device.Product())
	fmt.Printf("Helper:   %s\n", device.Helper().Name())
	fmt.Printf("Tiles:    %d (mask %#x)\n", device.TileCount(), uint32(device.TileMask()))

	if memoryInfo := device.MemoryInfo(); memoryInfo != nil {
		fmt.Println("Memory regions:")
		for _, region := range memoryInfo.Regions() {
			fmt.Printf("  %-10s probed %s, unallocated %s\n", regionName(region.Region),
				formatBytes(region.ProbedSize), formatBytes(region.UnallocatedSize))
		}
	}

	engineInfo := device.EngineInfo()
	fmt.Printf("Compute engines: %d (mask %#x)\n", engineInfo.NumberOfCCS(), engineInfo.CCSMask())
	for tile := uint32(0); tile < engineInfo.TileCount(); tile++ {
		fmt.Printf("  tile %d:", tile)
		for _, engine := range engineInfo.ListOfEnginesOnATile(tile) {
			fmt.Printf(" %s", engineName(engine))
		}
		fmt.Println()
	}
}

func topologyJSON(device *ioctl.Device) []byte {
	writer := jwriter.NewWriter()
	root := writer.Object()
	root.Name("Product").String(device.Product().String())
	root.Name("Helper").String(device.Helper().Name())
	root.Name("TileCount").Int(int(device.TileCount()))
	root.Name("TileMask").Int(int(device.TileMask()))

	if memoryInfo := device.MemoryInfo(); memoryInfo != nil {
		regions := root.Name("MemoryRegions").Array()
		for _, region := range memoryInfo.Regions() {
			obj := regions.Object()
			obj.Name("Region").String(regionName(region.Region))
			obj.Name("ProbedSize").Float64(float64(region.ProbedSize))
			obj.Name("UnallocatedSize").Float64(float64(region.UnallocatedSize))
			obj.End()
		}
		regions.End()
	}

	engineInfo := device.EngineInfo()
	root.Name("NumberOfCCS").Int(int(engineInfo.NumberOfCCS()))
	root.Name("CCSMask").Int(int(engineInfo.CCSMask()))
	tiles := root.Name("Tiles").Array()
	for tile := uint32(0); tile < engineInfo.TileCount(); tile++ {
		engines := tiles.Array()
		for _, engine := range engineInfo.ListOfEnginesOnATile(tile) {
			engines.String(engineName(engine))
		}
		engines.End()
	}
	tiles.End()
	root.End()

	return writer.Bytes()
}

func formatBytes(size uint64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := uint64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(size)/float64(div), "KMGTPE"[exp])
}
