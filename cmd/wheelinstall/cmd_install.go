// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"

	"github.com/datawire/wheelinstall/internal/destination"
	"github.com/datawire/wheelinstall/internal/engine"
	"github.com/datawire/wheelinstall/internal/platform"
	"github.com/datawire/wheelinstall/internal/wheelsource"
)

func init() {
	var platFile, installerID string
	cmd := &cobra.Command{
		Use:   "install [flags] WHEELFILE.whl",
		Short: "Install a wheel onto a real filesystem",
		Long: "Install a wheel onto a real filesystem." +
			"\n\n" +
			"wheelinstall needs to know a few things about the target environment: " +
			"where the interpreter lives, and where each install scheme (purelib, " +
			"platlib, headers, scripts, data) should land. Supply this with " +
			"--platform-file, pointing at a YAML file shaped like:" +
			"\n\n" +
			"    consoleShebang: /usr/bin/python3.9\n" +
			"    graphicalShebang: /usr/bin/python3.9\n" +
			"    scheme:\n" +
			"      purelib: /usr/lib/python3.9/site-packages\n" +
			"      platlib: /usr/lib/python3.9/site-packages\n" +
			"      headers: /usr/include/site/python3.9\n" +
			"      scripts: /usr/bin\n" +
			"      data: /usr\n" +
			"    tag:\n" +
			"      python: cp39\n" +
			"      abi: cp39\n" +
			"      platform: manylinux2014_x86_64\n",
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

			dst := destination.NewFilesystem(target)

			name, version, err := engine.Install(src, dst, target, engine.Options{
				AdditionalMetadata: map[string][]byte{
					"INSTALLER": []byte(installerID + "\n"),
				},
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "installed %s %s\n", name, version)
			return nil
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

func readTarget(platFile string) (platform.Target, error) {
	yamlBytes, err := os.ReadFile(platFile)
	if err != nil {
		return platform.Target{}, err
	}
	var target platform.Target
	if err := yaml.Unmarshal(yamlBytes, &target, yaml.DisallowUnknownFields); err != nil {
		return platform.Target{}, fmt.Errorf("%s: %w", platFile, err)
	}
	if err := target.Init(); err != nil {
		return platform.Target{}, fmt.Errorf("%s: %w", platFile, err)
	}
	return target, nil
}
