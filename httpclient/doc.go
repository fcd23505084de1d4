// Package httpclient builds the outbound *http.Client shared by the media
// fetcher and the engine sidecar client: pooled transport, default headers,
// optional auth, and classification of transport-level failures.
package httpclient
