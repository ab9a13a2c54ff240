package main

import (
	"fmt"
	"os"
	"strconv"
)

// config mirrors cmd/cvereach's environment-sourced configuration; it is
// duplicated rather than shared because the two commands are independent
// entry points with no common library package to hang it on, the same way
// the example commands this one is modeled on each read their own
// environment.
type config struct {
	pgHost     string
	pgUser     string
	pgPassword string
	pgDatabase string

	downloadDir string
	workingDir  string
	logDir      string

	registryHost string
	analyzerBin  string
	otelEndpoint string

	maxConcurrentBFSNodes    int
	maxConcurrentDepDownload int
}

func configFromEnv() (config, error) {
	c := config{
		pgHost:       os.Getenv("PG_HOST"),
		pgUser:       os.Getenv("PG_USER"),
		pgPassword:   os.Getenv("PG_PASSWORD"),
		pgDatabase:   os.Getenv("PG_DATABASE"),
		downloadDir:  envOr("DOWNLOAD_DIR", "./downloads"),
		workingDir:   envOr("WORKING_DIR", "./downloads/working"),
		logDir:       envOr("LOG_DIR", "./logs"),
		registryHost: envOr("REGISTRY_HOST", "https://registry.example.com"),
		analyzerBin:  envOr("ANALYZER_BIN", "cg4rs"),
		otelEndpoint: os.Getenv("OTEL_EXPORTER_ENDPOINT"),
	}

	var err error
	if c.maxConcurrentBFSNodes, err = envIntOr("MAX_CONCURRENT_BFS_NODES", 32); err != nil {
		return config{}, err
	}
	if c.maxConcurrentDepDownload, err = envIntOr("MAX_CONCURRENT_DEP_DOWNLOAD", 32); err != nil {
		return config{}, err
	}
	if c.pgHost == "" || c.pgUser == "" || c.pgDatabase == "" {
		return config{}, fmt.Errorf("cvereach-batch: PG_HOST, PG_USER, and PG_DATABASE are required")
	}
	return c, nil
}

func (c config) connString() string {
	return fmt.Sprintf("postgres://%s:%s@%s/%s", c.pgUser, c.pgPassword, c.pgHost, c.pgDatabase)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOr(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("cvereach-batch: %s: %w", key, err)
	}
	return n, nil
}
