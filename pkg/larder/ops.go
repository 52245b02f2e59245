package larder

import (
	"context"
	"fmt"
	"path"

	"github.com/mesh-intelligence/larder/pkg/types"
)

// MyRestaurants lists the restaurants owned by the signed-in user. The
// filter's OwnerID is overwritten.
func (l *Larder) MyRestaurants(ctx context.Context, f types.RestaurantFilter) ([]types.Restaurant, error) {
	if !l.session.Authenticated() {
		return nil, types.ErrNotAuthenticated
	}
	f.OwnerID = types.Ptr(l.session.UserID())
	return l.Restaurants.List(ctx, f)
}

// UpdateOrderStatus moves an order to next. The transition is checked against
// the order's current status as stored in the backend.
func (l *Larder) UpdateOrderStatus(ctx context.Context, id string, next types.OrderStatus) (types.Order, error) {
	current, err := l.Orders.Fetch(ctx, id)
	if err != nil {
		return types.Order{}, err
	}
	prev := current.Status
	if err := current.Transition(next, l.now()); err != nil {
		return types.Order{}, &types.MutationError{Resource: types.TableOrders, Op: types.OpUpdate, ID: id, Err: err}
	}
	if prev == next {
		return current, nil
	}
	return l.Orders.Update(ctx, id, types.Row{
		"status":     string(next),
		"updated_at": types.FormatTime(current.UpdatedAt),
	})
}

// ToggleMenuItemAvailability flips a menu item's is_available flag.
func (l *Larder) ToggleMenuItemAvailability(ctx context.Context, id string) (types.MenuItem, error) {
	return l.MenuItems.Toggle(ctx, id, "is_available")
}

// ToggleMenuItemFeatured flips a menu item's is_featured flag.
func (l *Larder) ToggleMenuItemFeatured(ctx context.Context, id string) (types.MenuItem, error) {
	return l.MenuItems.Toggle(ctx, id, "is_featured")
}

// ToggleRestaurantActive flips a restaurant's is_active flag.
func (l *Larder) ToggleRestaurantActive(ctx context.Context, id string) (types.Restaurant, error) {
	return l.Restaurants.Toggle(ctx, id, "is_active")
}

// SetMenuItemImage uploads data as the item's image and stores its URL.
func (l *Larder) SetMenuItemImage(ctx context.Context, id, name string, data []byte) (types.MenuItem, error) {
	item, err := l.MenuItems.Fetch(ctx, id)
	if err != nil {
		return types.MenuItem{}, err
	}
	url, err := l.upload(ctx, types.BucketMenuImages, path.Join(item.RestaurantID, id, name), data)
	if err != nil {
		return types.MenuItem{}, err
	}
	return l.MenuItems.Update(ctx, id, types.Row{"image_url": url})
}

// SetRestaurantImage uploads data as the restaurant's image and stores its
// URL.
func (l *Larder) SetRestaurantImage(ctx context.Context, id, name string, data []byte) (types.Restaurant, error) {
	if _, err := l.Restaurants.Fetch(ctx, id); err != nil {
		return types.Restaurant{}, err
	}
	url, err := l.upload(ctx, types.BucketRestaurantImages, path.Join(id, name), data)
	if err != nil {
		return types.Restaurant{}, err
	}
	return l.Restaurants.Update(ctx, id, types.Row{"image_url": url})
}

// SetUserAvatar uploads data as the user's avatar and stores its URL.
func (l *Larder) SetUserAvatar(ctx context.Context, id, name string, data []byte) (types.User, error) {
	if _, err := l.Users.Fetch(ctx, id); err != nil {
		return types.User{}, err
	}
	url, err := l.upload(ctx, types.BucketAvatars, path.Join(id, name), data)
	if err != nil {
		return types.User{}, err
	}
	return l.Users.Update(ctx, id, types.Row{"avatar_url": url})
}

func (l *Larder) upload(ctx context.Context, bucket, name string, data []byte) (string, error) {
	if l.storage == nil {
		return "", fmt.Errorf("uploading %s/%s: %w", bucket, name, ErrUnsupported)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty image", types.ErrInvalidData)
	}
	url, err := l.storage.Upload(ctx, bucket, name, data)
	if err != nil {
		return "", fmt.Errorf("uploading %s/%s: %w", bucket, name, err)
	}
	l.log.Info().Str("bucket", bucket).Str("path", name).Int("bytes", len(data)).Msg("image uploaded")
	return url, nil
}
