package main

import (
	"context"
	"fmt"
	"os"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/urfave/cli/v3"
	"github.com/vkngwrapper/gfxcore/config"
	"github.com/vkngwrapper/gfxcore/devicequeue"
	"github.com/vkngwrapper/gfxcore/encode"
	"github.com/vkngwrapper/gfxcore/hw"
	"golang.org/x/sync/errgroup"
)

type sizeEntry struct {
	name string
	size func(encoder encode.Encoder) int
}

var sizeTable = []sizeEntry{
	{name: "LoadRegisterImm", size: encode.Encoder.SizeLoadRegisterImm},
	{name: "LoadRegisterReg", size: encode.Encoder.SizeLoadRegisterReg},
	{name: "LoadRegisterMem", size: encode.Encoder.SizeLoadRegisterMem},
	{name: "StoreRegisterMem", size: encode.Encoder.SizeStoreRegisterMem},
	{name: "StoreDataImm", size: encode.Encoder.SizeStoreDataImm},
	{name: "Atomic", size: encode.Encoder.SizeAtomic},
	{name: "SemaphoreWait", size: encode.Encoder.SizeSemaphoreWait},
	{name: "MathReadModifyWrite", size: encode.Encoder.SizeMathReadModifyWrite},
	{name: "BatchBufferStart", size: encode.Encoder.SizeBatchBufferStart},
	{name: "BatchBufferEnd", size: encode.Encoder.SizeBatchBufferEnd},
	{name: "PipeControl", size: encode.Encoder.SizePipeControl},
	{name: "PipeControlWithPostSync", size: encode.Encoder.SizePipeControlWithPostSync},
	{name: "FullCacheFlush", size: encode.Encoder.SizeFullCacheFlush},
	{name: "DebugModeRegisters", size: encode.Encoder.SizeDebugModeRegisters},
	{name: "ComputeMode", size: func(encoder encode.Encoder) int {
		return encoder.SizeComputeMode(encode.ComputeModeRequest{CoherencyChanged: true})
	}},
	{name: "SchedulerSlot", size: devicequeue.SlotSize},
	{name: "SlbBuffer", size: devicequeue.SlbBufferSize},
}

type familySizes struct {
	family hw.Family
	sizes  []int
}

func sizesCmd() *cli.Command {
	return &cli.Command{
		Name:  "sizes",
		Usage: "Print the encoded size of each command for every core family",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			logger, err := newLogger()
			if err != nil {
				return err
			}
			flags, err := loadFlags(logger)
			if err != nil {
				return err
			}

			results, err := computeSizes(ctx, flags)
			if err != nil {
				return err
			}

			if jsonOutput {
				_, err = os.Stdout.Write(append(sizesJSON(results), '\n'))
				return err
			}

			fmt.Printf("%-24s", "")
			for _, result := range results {
				fmt.Printf(" %8s", result.family)
			}
			fmt.Println()
			for i, entry := range sizeTable {
				fmt.Printf("%-24s", entry.name)
				for _, result := range results {
					fmt.Printf(" %8d", result.sizes[i])
				}
				fmt.Println()
			}
			return nil
		},
	}
}

// computeSizes builds an encoder per family concurrently. Results keep the order of hw.Families.
func computeSizes(ctx context.Context, flags config.Flags) ([]familySizes, error) {
	families := hw.Families()
	results := make([]familySizes, len(families))

	group, _ := errgroup.WithContext(ctx)
	for i, family := range families {
		i, family := i, family
		group.Go(func() error {
			encoder, err := encode.ForFamily(family, flags)
			if err != nil {
				return err
			}

			sizes := make([]int, len(sizeTable))
			for j, entry := range sizeTable {
				sizes[j] = entry.size(encoder)
			}
			results[i] = familySizes{family: family, sizes: sizes}
			return nil
		})
	}

	err := group.Wait()
	if err != nil {
		return nil, err
	}
	return results, nil
}

func sizesJSON(results []familySizes) []byte {
	writer := jwriter.NewWriter()
	root := writer.Object()
	for _, result := range results {
		family := root.Name(result.family.String()).Object()
		for i, entry := range sizeTable {
			family.Name(entry.name).Int(result.sizes[i])
		}
		family.End()
	}
	root.End()

	return writer.Bytes()
}
