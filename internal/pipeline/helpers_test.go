package pipeline

import (
	"bytes"
	"io"

	"rapidsprite/config"
)

func bytesReader(b []byte) io.Reader {
	return bytes.NewReader(b)
}

func testConfig() *config.Config {
	cfg := config.FromEnv()
	count := 9
	cfg.SampleCount = &count
	cfg.SampleInterval = ""
	cfg.TilesPerRow = 3
	cfg.TilesPerSheet = 9
	cfg.SheetFormat = "png"
	cfg.FillColor = "#ffffff"
	if err := cfg.Validate(); err != nil {
		panic(err)
	}
	return cfg
}
