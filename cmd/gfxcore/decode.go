package main

import (
	"context"
	"fmt"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/urfave/cli/v3"
	"github.com/vkngwrapper/gfxcore/commands"
)

func decodeCmd() *cli.Command {
	var summary bool

	return &cli.Command{
		Name:      "decode",
		Usage:     "Decode a raw command buffer dump",
		ArgsUsage: "<file>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "summary", Usage: "print command counts instead of every command", Destination: &summary},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return cli.Exit("error: decode takes exactly one file", 1)
			}
			path := cmd.Args().First()

			buf, err := os.ReadFile(path)
			if err != nil {
				return errors.Wrapf(err, "failed to read %s", path)
			}

			parsed, parseErr := commands.Parse(buf)
			if jsonOutput {
				_, err = os.Stdout.Write(append(decodedJSON(parsed, summary), '\n'))
				if err != nil {
					return err
				}
			} else if summary {
				counts := commands.Count(parsed)
				for _, kind := range sortedKinds(counts) {
					fmt.Printf("%-32s %d\n", kind, counts[kind])
				}
			} else {
				for _, command := range parsed {
					fmt.Printf("%#08x %s\n", command.Offset, command.Command.Kind())
				}
			}

			return errors.Wrapf(parseErr, "failed to decode %s", path)
		},
	}
}

func decodedJSON(parsed []commands.ParsedCommand, summary bool) []byte {
	writer := jwriter.NewWriter()
	if summary {
		counts := commands.Count(parsed)
		root := writer.Object()
		for _, kind := range sortedKinds(counts) {
			root.Name(kind.String()).Int(counts[kind])
		}
		root.End()
		return writer.Bytes()
	}

	root := writer.Array()
	for _, command := range parsed {
		obj := root.Object()
		obj.Name("Offset").Int(command.Offset)
		obj.Name("Kind").String(command.Command.Kind().String())
		obj.End()
	}
	root.End()
	return writer.Bytes()
}
