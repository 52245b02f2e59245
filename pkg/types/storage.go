package types

import "context"

// Storage buckets used by record image fields.
const (
	BucketMenuImages       = "menu-images"
	BucketRestaurantImages = "restaurant-images"
	BucketAvatars          = "avatars"
)

// FileStorage uploads files and returns their public URL.
type FileStorage interface {
	Upload(ctx context.Context, bucket, path string, data []byte) (string, error)
	Remove(ctx context.Context, bucket, path string) error
}
