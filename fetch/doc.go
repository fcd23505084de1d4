// Package fetch turns a source reference into a finite local media file.
//
// A Fetcher picks a Downloader for the source (plain HTTP, yt-dlp for video
// page hosts, or the upload store), streams into the job's scratch directory
// under a byte cap, and retries Unreachable and Timeout failures with
// exponential backoff until the deadline. Partial files never outlive a
// failed Fetch.
package fetch
