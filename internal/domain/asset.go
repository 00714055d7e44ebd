package domain

// ImageAsset is a user-supplied image held in memory: raw bytes plus the
// declared media type and display name. Assets are never written to disk;
// they live exactly as long as the gateway session that accepted them.
//
// An asset is owned by exactly one slot at a time (the anchor slot or one
// position in a wardrobe category); whoever removes it from its slot is
// responsible for releasing its preview handle.
type ImageAsset struct {
	Name string
	MIME string
	Data []byte
}

// Size returns the byte length of the image payload.
func (a ImageAsset) Size() int64 {
	return int64(len(a.Data))
}
