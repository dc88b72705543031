package data

import "embed"

var (
	//go:embed captchad.yaml all:examples
	Configs embed.FS
)
