package main

import (
	"encoding/json"
	"fmt"
	"os"
)

// Job represents a job
type Job struct {
	// ffmpeg-style arguments, such as ["-i", "input.mp4", "-c:v", "libx264", "output.mkv"]
	Args []string `json:"args"`
}

func readJob(path string) (j Job, err error) {
	// Open file
	var f *os.File
	if f, err = os.Open(path); err != nil {
		err = fmt.Errorf("main: opening %s failed: %w", path, err)
		return
	}
	defer f.Close()

	// Unmarshal
	if err = json.NewDecoder(f).Decode(&j); err != nil {
		err = fmt.Errorf("main: unmarshaling %s failed: %w", path, err)
		return
	}
	return
}

// args returns the job args followed by the command line ones
func args(jobPath string, extra []string) (as []string, err error) {
	// Job
	if jobPath != "" {
		var j Job
		if j, err = readJob(jobPath); err != nil {
			err = fmt.Errorf("main: reading job failed: %w", err)
			return
		}
		as = append(as, j.Args...)
	}

	// Extra
	as = append(as, extra...)

	// No args
	if len(as) == 0 {
		err = fmt.Errorf("main: no args provided, use -j or pass ffmpeg-style args after the flags")
		return
	}
	return
}
