package dispatch

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"

	"github.com/tripforge/geopipeline/internal/model"
)

// CacheKey hashes a task's address together with the provider and its parser
// version. The hash is entity agnostic so identical addresses share cached
// results, and bumping an adapter version invalidates its entries.
func CacheKey(task model.GeocoderTask, version string) string {
	data := task.Address.Fields()
	data["provider"] = task.Provider + ":" + version

	// map keys marshal in sorted order, keeping the hash stable
	raw, _ := json.Marshal(data)
	sum := md5.Sum(raw)
	return hex.EncodeToString(sum[:])
}
