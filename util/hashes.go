// vxcube-go
// Copyright (c) 2026, DCSO GmbH

// Package util holds small helpers shared by the CLI and the library:
// multi-hash calculation and libmagic file typing.
package util

import (
	"bufio"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"io"
	"os"

	"golang.org/x/crypto/sha3"
)

// HashInfo contains the digests recorded for an uploaded file.
type HashInfo struct {
	Md5      string
	Sha1     string
	Sha256   string
	Sha512   string
	Sha3_512 string
}

// CalculateBasicHashes computes all digests in a single buffered pass over
// the reader using a multiwriter.
func CalculateBasicHashes(rd io.Reader) (HashInfo, error) {
	var info HashInfo

	md5Hash := md5.New()
	sha1Hash := sha1.New()
	sha256Hash := sha256.New()
	sha512Hash := sha512.New()
	sha3_512Hash := sha3.New512()

	reader := bufio.NewReaderSize(rd, os.Getpagesize())
	multiWriter := io.MultiWriter(md5Hash, sha1Hash, sha256Hash, sha512Hash, sha3_512Hash)

	_, err := io.Copy(multiWriter, reader)
	if err != nil {
		return info, err
	}

	info.Md5 = hex.EncodeToString(md5Hash.Sum(nil))
	info.Sha1 = hex.EncodeToString(sha1Hash.Sum(nil))
	info.Sha256 = hex.EncodeToString(sha256Hash.Sum(nil))
	info.Sha512 = hex.EncodeToString(sha512Hash.Sum(nil))
	info.Sha3_512 = hex.EncodeToString(sha3_512Hash.Sum(nil))

	return info, nil
}

// HashFile computes all digests for the file at the given path.
func HashFile(path string) (HashInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return HashInfo{}, err
	}
	defer f.Close()
	return CalculateBasicHashes(f)
}
