// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/datawire/wheelinstall/internal/destination"
	"github.com/datawire/wheelinstall/internal/engine"
	"github.com/datawire/wheelinstall/internal/wheelsource"
	"github.com/datawire/wheelinstall/pkg/fsutil"
)

func init() {
	var platFile, installerID string
	cmd := &cobra.Command{
		Use:   "layer [flags] WHEELFILE.whl >LAYERFILE",
		Short: "Install a wheel into a standalone OCI image layer",
		Long: "Install a wheel the same way `install` does, but without touching a " +
			"real filesystem: the result is written to stdout as an uncompressed " +
			"tar stream suitable for use as a single OCI image layer." +
			"\n\n" +
			"See `wheelinstall install --help` for the --platform-file format.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := readTarget(platFile)
			if err != nil {
				return err
			}

			src, err := wheelsource.Open(args[0])
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			defer src.Close()

			dst := destination.NewLayer(target, time.Time{})

			if _, _, err := engine.Install(src, dst, target, engine.Options{
				AdditionalMetadata: map[string][]byte{
					"INSTALLER": []byte(installerID + "\n"),
				},
			}); err != nil {
				return err
			}

			layer, err := dst.Build()
			if err != nil {
				return err
			}
			return fsutil.WriteLayer(layer, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&platFile, "platform-file", "",
		"Read `IN_YAML_FILE` to determine details about the target platform")
	cmd.Flags().StringVar(&installerID, "installer", "wheelinstall",
		"Identifier recorded in the installed dist-info's INSTALLER file")
	if err := cmd.MarkFlagRequired("platform-file"); err != nil {
		panic(err)
	}
	argparser.AddCommand(cmd)
}
