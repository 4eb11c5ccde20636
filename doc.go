// Package redisgate is a validating gateway placed in front of a shared
// Redis key-value/pub-sub store.
//
// External producers submit typed write requests over a Unix domain socket.
// The gateway enforces a key naming convention and a per-object JSON schema
// before forwarding each operation to Redis and announcing the change on a
// pub/sub channel named after the key.
//
// # Architecture
//
// The request path is a straight pipeline:
//
//	gateway.Server  accepts connections, one goroutine + one Redis session each
//	protocol        decodes newline-delimited JSON requests, encodes responses
//	keyspace        classifies keys against the producer/object grammar
//	schema          validates payloads against per-base-key JSON schemas
//	dispatch        maps the action verb to a Redis mutation + notification
//
// Supporting packages:
//
//	redisclient     Redis client wrapper with per-connection sessions
//	config          static configuration: allow-lists, schema table, transport
//	metric          Prometheus registry and metrics HTTP endpoint
//	health          backend liveness prober behind the /health endpoint
//	errors          classified error handling (transient / invalid / fatal)
//	pkg/retry       exponential backoff for backend connects
//	diskmon         periodic disk-space producer writing through the same store
//
// # Commands
//
//	cmd/redisgate   the gateway daemon
//	cmd/diskmon     the disk-space poller
//	cmd/loadgen     a rate-paced load-generation client
//
// # Wire contract
//
// A request is one JSON object terminated by a single '\n':
//
//	{"action":"set","key":"cs:DiskUsage:object1","value":{"version":1,"disk":"/dev/sda1","usage":42}}
//
// The reply is one JSON object with no trailing delimiter:
//
//	{"status":"ok","message":"Action completed successfully"}
//
// Keys follow the grammar cs:<producer>:<object>[:<instance-id>][:<function>]
// where producer and object are drawn from configured allow-lists. A request
// that fails key classification or schema validation never reaches Redis.
package redisgate
