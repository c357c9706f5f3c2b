package stagefundgrpc

import (
	"errors"
	"strconv"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/blockberries/stagefund"
	"github.com/blockberries/stagefund/server"
)

const haltPrefix = "halt "

// toStatus maps application errors onto gRPC status codes. A HaltError
// travels as Aborted with its height in the message.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok && status.Code(err) != codes.Unknown {
		return err
	}
	if h, ok := stagefund.IsHalt(err); ok {
		return status.Errorf(codes.Aborted, "%s%d %s", haltPrefix, h.Height, h.Reason)
	}
	if errors.Is(err, server.ErrHalted) {
		return status.Error(codes.FailedPrecondition, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

// fromStatus restores a HaltError sent by toStatus.
func fromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok || st.Code() != codes.Aborted || !strings.HasPrefix(st.Message(), haltPrefix) {
		return err
	}
	height, reason, _ := strings.Cut(strings.TrimPrefix(st.Message(), haltPrefix), " ")
	h, perr := strconv.ParseUint(height, 10, 64)
	if perr != nil {
		return err
	}
	return stagefund.NewHaltError(h, reason)
}
