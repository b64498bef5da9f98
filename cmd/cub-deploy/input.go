// Copyright (C) ConfigHub, Inc.
// SPDX-License-Identifier: MIT

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/confighub/cub-deploy/internal/workflow"
)

// sourceSaved names manifest text restored from the saved editor state.
const sourceSaved = "saved manifest"

// readManifest returns the manifest named by args: a file, "-" for stdin,
// or nothing for the saved editor content. Text read from a file or stdin
// becomes the new saved content.
func readManifest(args []string, stdin io.Reader, wf *workflow.Workflow) (source string, err error) {
	if len(args) == 0 {
		if strings.TrimSpace(wf.Content()) == "" {
			return "", errors.New("no manifest given and none saved from a previous run; pass FILE or - for stdin")
		}
		return sourceSaved, nil
	}

	var data []byte
	if args[0] == "-" {
		source = "stdin"
		data, err = io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
	} else {
		source = args[0]
		data, err = os.ReadFile(args[0])
		if err != nil {
			return "", fmt.Errorf("read file: %w", err)
		}
	}
	if err := wf.SetContent(string(data)); err != nil {
		return "", err
	}
	return source, nil
}
