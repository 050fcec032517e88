package services

import (
	"context"

	"github.com/aws/aws-xray-sdk-go/xray"
)

// capture records fn as an X-Ray subsegment when ctx carries a segment and
// runs it untraced otherwise.
func capture(ctx context.Context, name string, fn func(context.Context) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if xray.GetSegment(ctx) == nil {
		return fn(ctx)
	}
	return xray.Capture(ctx, name, fn)
}
