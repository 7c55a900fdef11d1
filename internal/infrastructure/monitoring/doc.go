/*
Package monitoring provides Prometheus metrics for the sync server.

# Overview

Collectors cover HTTP requests, WebSocket connections and messages,
broadcast fan-out, task store calls, backups and reminder digests.
Every collector is registered on the Registerer passed to NewMetrics.

# Usage

	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(reg)
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	timer := monitoring.NewTimer(metrics, "create")
	_, err := store.Create(ctx, fields)
	timer.Stop(err)
*/
package monitoring
