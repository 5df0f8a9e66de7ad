// Package localfs stores note audio on the local filesystem. It owns the
// layout of the upload directory: append-mode part files for in-progress
// chunked uploads under tmp/, and completed files named by note ID at the
// root of the directory.
package localfs
