// Package api exposes the job pipeline over HTTP.
//
// Routes, all under /v1:
//
//	POST   /jobs                  submit {source, model?, language?}
//	GET    /jobs                  list recent jobs
//	GET    /jobs/:id              job status
//	POST   /jobs/:id/cancel       request cancellation
//	DELETE /jobs/:id              request cancellation
//	GET    /jobs/:id/transcript   transcript as json, text, timestamps, srt or vtt
//	GET    /jobs/:id/events       transitions since ?since=N, or a live stream
//	POST   /uploads               multipart upload returning an upload:// source
//	GET    /models                accepted model names
//
// Responses use the server package envelope; errors are AppErrors.
package api
