// Package cachekey derives the stable object names generated images are
// stored under.
package cachekey

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
)

// Namespace is the folder every cached image lives under in the store.
const Namespace = "opengraph/"

// Derive returns "{buildID}-{sha1(title)}.png". The digest is hex encoded in
// lower case.
func Derive(buildID, title string) string {
	sum := sha1.Sum([]byte(title))
	return buildID + "-" + hex.EncodeToString(sum[:]) + ".png"
}

// ObjectName places key under Namespace. Names that already carry the prefix
// are returned unchanged.
func ObjectName(key string) string {
	if strings.HasPrefix(key, Namespace) {
		return key
	}
	return Namespace + key
}

// Deriver binds a build identifier for repeated derivations.
type Deriver struct {
	BuildID string
}

// NewDeriver returns a Deriver for buildID.
func NewDeriver(buildID string) Deriver {
	return Deriver{BuildID: buildID}
}

// Key returns the cache key for title.
func (d Deriver) Key(title string) string {
	return Derive(d.BuildID, title)
}

// ObjectName returns the namespaced store object name for title.
func (d Deriver) ObjectName(title string) string {
	return ObjectName(d.Key(title))
}
