// Copyright 2019 The Wuffs Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// ----------------

// Command flatetool exercises lib/zlib and lib/gzip from the command
// line: zlibdeflate/zlibinflate/gzip/gunzip subcommands reading from a file (or
// stdin) and writing to a file (or stdout).
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/flatecore/flatecore/lib/deflate"
	"github.com/flatecore/flatecore/lib/gzip"
	"github.com/flatecore/flatecore/lib/zlib"
)

var (
	logger  = logrus.New()
	verbose bool
	level   int
	input   string
	output  string
)

func main() {
	root := &cobra.Command{
		Use:   "flatetool",
		Short: "Compress and decompress DEFLATE, zlib, and gzip streams",
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log progress to stderr")
	root.PersistentFlags().IntVarP(&level, "level", "l", int(deflate.DefaultLevel), "compression level, 0-9 (-1 for default)")
	root.PersistentFlags().StringVarP(&input, "in", "i", "-", "input file, or - for stdin")
	root.PersistentFlags().StringVarP(&output, "out", "o", "-", "output file, or - for stdout")

	root.AddCommand(
		newCodecCommand("zlibdeflate", "compress a stream as zlib", zlibDeflate),
		newCodecCommand("zlibinflate", "decompress a zlib stream", zlibInflate),
		newCodecCommand("gzip", "compress a stream as gzip", gzipDeflate),
		newCodecCommand("gunzip", "decompress a gzip stream", gzipInflate),
	)

	if err := root.Execute(); err != nil {
		logger.WithError(err).Error("flatetool failed")
		os.Exit(1)
	}
}

func newCodecCommand(use, short string, run func(io.Reader, io.Writer) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			if verbose {
				logger.SetLevel(logrus.DebugLevel)
			}
			in, closeIn, err := openInput(input)
			if err != nil {
				return err
			}
			defer closeIn()
			out, closeOut, err := openOutput(output)
			if err != nil {
				return err
			}
			defer closeOut()

			var levelFlag *pflag.Flag = cmd.Flags().Lookup("level")
			if levelFlag != nil && !levelFlag.Changed {
				logger.Debug("using default compression level")
			}
			logger.WithFields(logrus.Fields{"cmd": use, "level": level}).Debug("starting")
			if err := run(in, out); err != nil {
				return fmt.Errorf("%s: %w", use, err)
			}
			logger.WithField("cmd", use).Debug("done")
			return nil
		},
	}
}

func openInput(path string) (io.Reader, func(), error) {
	if path == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}

func openOutput(path string) (io.Writer, func(), error) {
	if path == "-" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}

func zlibDeflate(in io.Reader, out io.Writer) error {
	w := zlib.NewWriterLevel(out, deflate.Level(level))
	if _, err := io.Copy(w, in); err != nil {
		return err
	}
	return w.Close()
}

func zlibInflate(in io.Reader, out io.Writer) error {
	r, err := zlib.NewReader(in)
	if err != nil {
		return err
	}
	_, err = io.Copy(out, r)
	return err
}

func gzipDeflate(in io.Reader, out io.Writer) error {
	w := gzip.NewWriterLevel(out, deflate.Level(level))
	if _, err := io.Copy(w, in); err != nil {
		return err
	}
	return w.Close()
}

func gzipInflate(in io.Reader, out io.Writer) error {
	r, err := gzip.NewReader(in)
	if err != nil {
		return err
	}
	_, err = io.Copy(out, r)
	return err
}
