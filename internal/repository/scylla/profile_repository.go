package scylla

import (
	"context"
	"fmt"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"alerto-service/internal/model"
	"alerto-service/internal/util"
)

// ProfileRepository reads the platform-owned user profile documents. This
// service never writes them; it only needs the role attribute for
// authorization and the display name for logging.
type ProfileRepository struct {
	client *ScyllaClient
}

func NewProfileRepository(client *ScyllaClient) *ProfileRepository {
	return &ProfileRepository{client: client}
}

// GetProfile returns (nil, nil) when no profile exists for the user
func (r *ProfileRepository) GetProfile(ctx context.Context, userID string) (*model.UserProfile, error) {
	query := r.client.Prepared.GetProfile.
		Bind(userID).
		WithContext(ctx)

	var (
		id          string
		displayName string
		role        string
	)
	err := r.client.ScanWithRetry(query, &id, &displayName, &role)
	if err == gocql.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		util.Error("Failed to read user profile",
			zap.String("user_id", userID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to read user profile: %w", err)
	}

	return &model.UserProfile{
		UserID:      id,
		DisplayName: displayName,
		Role:        model.ParseRole(role),
	}, nil
}
