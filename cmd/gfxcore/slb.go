package main

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/urfave/cli/v3"
	"github.com/vkngwrapper/gfxcore/commands"
	"github.com/vkngwrapper/gfxcore/devicequeue"
	"github.com/vkngwrapper/gfxcore/hw"
	"github.com/vkngwrapper/gfxcore/memory"
)

func slbCmd() *cli.Command {
	var (
		familyName  string
		productName string
		profiling   bool
		queueSize   uint64
	)

	return &cli.Command{
		Name:  "slb",
		Usage: "Build a device queue and summarize its scheduler second-level batch",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "family", Usage: "core family to build for", Value: "Gen9", Destination: &familyName},
			&cli.StringFlag{Name: "product", Usage: "product to build for, overrides --family", Destination: &productName},
			&cli.BoolFlag{Name: "profiling", Usage: "create the queue with profiling enabled", Destination: &profiling},
			&cli.UintFlag{Name: "queue-size", Usage: "device queue size in bytes (0 = preferred size)", Destination: &queueSize},
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

			product, err := resolveProduct(familyName, productName)
			if err != nil {
				return err
			}
			hwInfo, _ := hw.DefaultHardwareInfo(product)

			manager := memory.NewMemoryManager(logger, memory.CreateOptions{Flags: flags})
			device, err := devicequeue.NewDevice(hwInfo, flags, manager, logger)
			if err != nil {
				return err
			}

			queueFlags := devicequeue.QueueOutOfOrderExecMode | devicequeue.QueueOnDevice
			if profiling {
				queueFlags |= devicequeue.QueueProfiling
			}
			queue, status := devicequeue.Create(devicequeue.NewContext(device), device, devicequeue.Properties{
				Flags:     queueFlags,
				QueueSize: uint32(queueSize),
			})
			if status != devicequeue.StatusSuccess {
				return errors.Newf("failed to create a device queue on %s: %s", product, status)
			}
			defer func() { _ = queue.Destroy() }()

			parsed, err := commands.Parse(queue.SlbCS().Bytes())
			if err != nil {
				return errors.Wrap(err, "failed to parse the second-level batch")
			}

			summary := slbSummary{
				product:        product,
				bufferSize:     queue.SlbBufferSize(),
				used:           queue.SlbCS().Used(),
				slotSize:       devicequeue.SlotSize(device.Encoder()),
				minimumSlbSize: queue.MinimumSlbSize(),
				waCommandsSize: queue.WaCommandsSize(),
				counts:         commands.Count(parsed),
			}
			if jsonOutput {
				_, err = os.Stdout.Write(append(summary.json(), '\n'))
				return err
			}
			summary.print()
			return nil
		},
	}
}

func resolveProduct(familyName, productName string) (hw.Product, error) {
	if productName != "" {
		product := hw.ParseProduct(productName)
		if product == hw.ProductUnknown {
			return product, errors.Newf("unknown product %q", productName)
		}
		return product, nil
	}

	family := hw.ParseFamily(familyName)
	if family == hw.FamilyUnknown {
		return hw.ProductUnknown, errors.Newf("unknown family %q", familyName)
	}
	for _, product := range hw.Products() {
		if product.Family() == family {
			return product, nil
		}
	}
	return hw.ProductUnknown, errors.Newf("no product in family %s", family)
}

type slbSummary struct {
	product        hw.Product
	bufferSize     int
	used           int
	slotSize       int
	minimumSlbSize int
	waCommandsSize int
	counts         map[commands.Kind]int
}

func sortedKinds(counts map[commands.Kind]int) []commands.Kind {
	kinds := make([]commands.Kind, 0, len(counts))
	for kind := range counts {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

func (s slbSummary) print() {
	fmt.Printf("Product:          %s (%s)\n", s.product, s.product.Family())
	fmt.Printf("SLB buffer size:  %d\n", s.bufferSize)
	fmt.Printf("SLB used:         %d\n", s.used)
	fmt.Printf("Slot size:        %d\n", s.slotSize)
	fmt.Printf("Minimum SLB size: %d\n", s.minimumSlbSize)
	fmt.Printf("WA commands size: %d\n", s.waCommandsSize)
	fmt.Println("Commands:")
	for _, kind := range sortedKinds(s.counts) {
		fmt.Printf("  %-32s %d\n", kind, s.counts[kind])
	}
}

func (s slbSummary) json() []byte {
	writer := jwriter.NewWriter()
	root := writer.Object()
	root.Name("Product").String(s.product.String())
	root.Name("Family").String(s.product.Family().String())
	root.Name("SlbBufferSize").Int(s.bufferSize)
	root.Name("SlbUsed").Int(s.used)
	root.Name("SlotSize").Int(s.slotSize)
	root.Name("MinimumSlbSize").Int(s.minimumSlbSize)
	root.Name("WaCommandsSize").Int(s.waCommandsSize)

	counts := root.Name("Commands").Object()
	for _, kind := range sortedKinds(s.counts) {
		counts.Name(kind.String()).Int(s.counts[kind])
	}
	counts.End()
	root.End()

	return writer.Bytes()
}
