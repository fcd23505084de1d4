// Package normalize converts fetched media into canonical PCM and
// fingerprints it. The same input bytes always produce byte-identical output,
// which keeps fingerprints stable across jobs.
package normalize
