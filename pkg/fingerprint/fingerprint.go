package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/batchshipyard/engine/pkg/types"
)

func hashJSON(v interface{}) string {
	// encoding/json sorts map keys during marshal, giving a canonical
	// representation for any value built only from structs, slices and
	// maps with comparable key types.
	b, err := json.Marshal(v)
	if err != nil {
		panic("fingerprint: unmarshalable value: " + err.Error())
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Image fingerprints an image reference by registry + repository + tag +
// digest (if known) (§4.C).
func Image(ref types.ImageReference) string {
	return hashJSON(struct {
		Registry   string
		Repository string
		Tag        string
		Digest     string
	}{ref.Registry, ref.Repository, ref.Tag, ref.Digest})
}

// canonicalTask strips identity fields (ID, JobID, State) so that two
// descriptors produced by the same factory template fingerprint identically
// regardless of assigned id.
type canonicalTask struct {
	Image              string
	Command            string
	EntrypointOverride string
	Env                map[string]string
	Ports              []int
	DataVolumeMounts   []string
	Exclusive          bool
	GPU                bool
	Infiniband         bool
}

// TaskGroup fingerprints an ordered set of task descriptors — after factory
// expansion — as they will be submitted, so sibling tasks within a job that
// share ingress inputs can be deduplicated (§4.C).
func TaskGroup(tasks []*types.TaskDescriptor) string {
	canon := make([]canonicalTask, 0, len(tasks))
	for _, t := range tasks {
		mounts := append([]string(nil), t.DataVolumeMounts...)
		sort.Strings(mounts)
		canon = append(canon, canonicalTask{
			Image:              Image(t.Image),
			Command:            t.Command,
			EntrypointOverride: t.EntrypointOverride,
			Env:                t.Env,
			Ports:              t.Ports,
			DataVolumeMounts:   mounts,
			Exclusive:          t.Exclusive,
			GPU:                t.GPU,
			Infiniband:         t.Infiniband,
		})
	}
	return hashJSON(canon)
}

// MountAlias fingerprints a volume mount by driver + target + options
// (§4.C).
func MountAlias(m *types.VolumeMount) string {
	return hashJSON(struct {
		Driver  string
		Target  string
		Options map[string]string
	}{m.Driver, m.Target, m.Options})
}
