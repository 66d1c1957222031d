package model

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Defaults applied to zero valued job fields.
const (
	DefaultThreadCount = 2
	DefaultMaxRAMMB    = 4096
	DefaultBucketCount = 128
	DefaultPlotCount   = 1
	DefaultQueueName   = "default"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Job is a desired state of one plotting job. It is immutable once added to
// the config file.
type Job struct {
	ChiaExe         string `json:"chiaExe,omitempty" yaml:"chiaExe,omitempty"`
	KeyFingerprint  int64  `json:"keyFingerprint,omitempty" yaml:"keyFingerprint,omitempty" validate:"gte=0"`
	PoolPublicKey   string `json:"poolPublicKey,omitempty" yaml:"poolPublicKey,omitempty"`
	FarmerPublicKey string `json:"farmerPublicKey,omitempty" yaml:"farmerPublicKey,omitempty"`
	Temp1Dir        string `json:"temp1Dir" yaml:"temp1Dir" validate:"required"`
	Temp2Dir        string `json:"temp2Dir,omitempty" yaml:"temp2Dir,omitempty"`
	PlotDir         string `json:"plotDir" yaml:"plotDir" validate:"required"`
	ThreadCount     int    `json:"threadCount" yaml:"threadCount" validate:"gte=1"`
	MaxRAMMB        int    `json:"maxRamMB" yaml:"maxRamMB" validate:"gte=1"`
	BucketCount     int    `json:"bucketCount" yaml:"bucketCount" validate:"gte=1"`
	PlotCount       int    `json:"plotCount" yaml:"plotCount" validate:"gte=1"`
	QueueName       string `json:"queueName,omitempty" yaml:"queueName,omitempty"`
	PlotParallelism int    `json:"plotParallelism,omitempty" yaml:"plotParallelism,omitempty" validate:"gte=0"`
}

// WithDefaults returns a copy of the job where zero values are replaced by defaults.
func (j Job) WithDefaults() Job {
	if j.ThreadCount == 0 {
		j.ThreadCount = DefaultThreadCount
	}
	if j.MaxRAMMB == 0 {
		j.MaxRAMMB = DefaultMaxRAMMB
	}
	if j.BucketCount == 0 {
		j.BucketCount = DefaultBucketCount
	}
	if j.PlotCount == 0 {
		j.PlotCount = DefaultPlotCount
	}
	if j.QueueName == "" {
		j.QueueName = DefaultQueueName
	}
	return j
}

// Validate checks the job has everything needed to run the plotter. Either
// a key fingerprint or a farmer and pool public key pair must be present.
func (j Job) Validate() error {
	if err := validate.Struct(j); err != nil {
		return fmt.Errorf("invalid job: %w", err)
	}
	if j.KeyFingerprint == 0 && (strings.TrimSpace(j.FarmerPublicKey) == "" || strings.TrimSpace(j.PoolPublicKey) == "") {
		return fmt.Errorf("invalid job: %w", ErrMissingKeys)
	}
	return nil
}

// Args builds arguments of a single `plots create` run. Every run creates
// exactly one plot, the Monitor repeats runs until PlotCount is reached.
func (j Job) Args() []string {
	args := []string{
		"plots", "create",
		"-n", "1",
		"-r", strconv.Itoa(j.ThreadCount),
		"-b", strconv.Itoa(j.MaxRAMMB),
		"-u", strconv.Itoa(j.BucketCount),
		"-t", j.Temp1Dir,
	}
	if j.Temp2Dir != "" {
		args = append(args, "-2", j.Temp2Dir)
	}
	args = append(args, "-d", j.PlotDir)
	if j.KeyFingerprint != 0 {
		args = append(args, "-a", strconv.FormatInt(j.KeyFingerprint, 10))
	}
	if j.FarmerPublicKey != "" {
		args = append(args, "-f", j.FarmerPublicKey)
	}
	if j.PoolPublicKey != "" {
		args = append(args, "-p", j.PoolPublicKey)
	}
	return args
}

// ExeName returns the base name of the plotter executable, used when
// recognizing already running plotter processes.
func ExeName(chiaExe string) string {
	if chiaExe == "" {
		return ""
	}
	name := filepath.Base(chiaExe)
	return strings.TrimSuffix(name, filepath.Ext(name))
}
