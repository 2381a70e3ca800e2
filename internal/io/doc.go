// Package ioutils provides file system and image processing utilities.
//
// # Atomic Writes
//
// Every asset and index file is written through AtomicFile: data goes to a
// temporary file in the destination directory and is renamed into place only
// once complete, so a crash never leaves a truncated file under a final name.
//
//	n, err := ioutils.CopyAtomic("/media/abc.jpg", resp.Body)
//	err := ioutils.WriteFileAtomic("/media/.index.json", data)
//
// # Image Processing
//
// ImageService normalises fetched images:
//
//	svc := ioutils.NewImageService(1000, true)
//	jpeg, err := svc.Normalize(ctx, data)
package ioutils
