package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebhookEvents tracks inbound crawl lifecycle events by normalized kind.
	WebhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webagent_webhook_events_total",
		Help: "The total number of crawl webhook events received, by kind.",
	}, []string{"kind"})
	// PagesStored tracks the number of page rows persisted.
	PagesStored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "webagent_pages_stored_total",
		Help: "The total number of scraped pages persisted.",
	})
	// EmbeddingsStored tracks the number of embedding rows persisted.
	EmbeddingsStored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "webagent_embeddings_stored_total",
		Help: "The total number of embedding rows persisted.",
	})
	// EmbeddingRetries tracks failed embedding attempts that were retried.
	EmbeddingRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "webagent_embedding_retries_total",
		Help: "The total number of embedding requests that were retried.",
	})
	// EmbeddingBatches tracks planned batches by outcome (ok, fallback).
	EmbeddingBatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webagent_embedding_batches_total",
		Help: "The total number of embedding batches processed, by outcome.",
	}, []string{"outcome"})
)
