// Copyright (c) 2026, the cpdeploy contributors
//
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/credprov/cpdeploy/model"
)

var (
	NameSpace = "cpdeploy"
	Subsystem = "bundle"

	// DownloadTime is a summary of the time taken to download the bundle
	DownloadTime = prometheus.NewSummaryVec(prometheus.SummaryOpts{
		Name: prometheus.BuildFQName(NameSpace, Subsystem, "download_duration_seconds"),
		Help: "Time taken to download the bundle",
	}, []string{"source"})

	// DownloadSkippedCount counts downloads avoided because the staged copy was current
	DownloadSkippedCount = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: prometheus.BuildFQName(NameSpace, Subsystem, "download_skipped_count"),
		Help: "How many downloads were skipped because the staged bundle was current",
	}, []string{"source"})

	// RetryAttemptCount counts additional attempts consumed by the retry policy
	RetryAttemptCount = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: prometheus.BuildFQName(NameSpace, Subsystem, "retry_attempt_count"),
		Help: "How many retry attempts were consumed beyond the first",
	}, []string{"operation"})

	// FilesExtractedCount counts files written during extraction
	FilesExtractedCount = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: prometheus.BuildFQName(NameSpace, Subsystem, "files_extracted_count"),
		Help: "How many files were written during extraction",
	}, []string{})

	// FilesSkippedCount counts files skipped as already up to date
	FilesSkippedCount = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: prometheus.BuildFQName(NameSpace, Subsystem, "files_skipped_count"),
		Help: "How many files were already up to date during extraction",
	}, []string{})

	// RollbackDeleteCount counts files removed by failure rollback
	RollbackDeleteCount = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: prometheus.BuildFQName(NameSpace, Subsystem, "rollback_delete_count"),
		Help: "How many files were removed while rolling back a failed extraction",
	}, []string{})

	// DeployTime is a summary of the time taken by the whole pipeline
	DeployTime = prometheus.NewSummaryVec(prometheus.SummaryOpts{
		Name: prometheus.BuildFQName(NameSpace, Subsystem, "deploy_duration_seconds"),
		Help: "Time taken by the fetch and extract pipeline",
	}, []string{"source"})
)

func RegisterMetrics() {
	prometheus.MustRegister(DownloadTime)
	prometheus.MustRegister(DownloadSkippedCount)
	prometheus.MustRegister(RetryAttemptCount)
	prometheus.MustRegister(FilesExtractedCount)
	prometheus.MustRegister(FilesSkippedCount)
	prometheus.MustRegister(RollbackDeleteCount)
	prometheus.MustRegister(DeployTime)
}

func ListenAndServe(port int, log model.Logger) {
	if port <= 0 {
		return
	}

	go func() {
		log.Info("Starting monitoring server", "port", port)
		http.Handle("/metrics", promhttp.Handler())
		err := http.ListenAndServe(fmt.Sprintf(":%d", port), nil)
		if err != nil {
			log.Error("HTTP Listener failed", "error", err)
		}
	}()
}
