package orgcontext

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrgIDRoundTrip(t *testing.T) {
	_, ok := OrgIDFromContext(context.Background())
	assert.False(t, ok)

	_, ok = OrgIDFromContext(WithOrgID(context.Background(), 0))
	assert.False(t, ok)

	id, ok := OrgIDFromContext(WithOrgID(context.Background(), 42))
	assert.True(t, ok)
	assert.Equal(t, int64(42), id)
}

func TestActorIsTrimmed(t *testing.T) {
	ctx := WithActor(context.Background(), "  user:7 ")
	assert.Equal(t, "user:7", ActorFromContext(ctx))
	assert.Empty(t, ActorFromContext(context.Background()))
}
