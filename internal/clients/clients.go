package clients

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"schoolbridge/portal/internal/auth"
	"schoolbridge/portal/internal/model"
	"schoolbridge/portal/internal/result"
)

const (
	serviceTokenHeader = "x-service-token"

	loginMethod    = "/schoolbridge.auth.v1.AuthService/Login"
	registerMethod = "/schoolbridge.auth.v1.AuthService/Register"
	logoutMethod   = "/schoolbridge.auth.v1.AuthService/Logout"
)

// AuthClient talks to the backend auth service over gRPC. Messages are
// google.protobuf.Struct envelopes shaped like the backend's JSON API.
type AuthClient struct {
	conn         *grpc.ClientConn
	serviceToken string
}

var _ auth.AuthService = (*AuthClient)(nil)

func New(ctx context.Context, addr, serviceToken string, timeout time.Duration) (*AuthClient, error) {
	conn, err := dial(ctx, addr, timeout)
	if err != nil {
		return nil, err
	}
	return NewAuthClient(conn, serviceToken), nil
}

func NewAuthClient(conn *grpc.ClientConn, serviceToken string) *AuthClient {
	return &AuthClient{conn: conn, serviceToken: serviceToken}
}

func (c *AuthClient) Close() {
	if c == nil || c.conn == nil {
		return
	}
	_ = c.conn.Close()
}

func (c *AuthClient) Login(ctx context.Context, creds auth.Credentials) (auth.LoginResponse, error) {
	req, err := structpb.NewStruct(map[string]interface{}{
		"email":    creds.Email,
		"password": creds.Password,
		"role":     string(creds.Role),
	})
	if err != nil {
		return auth.LoginResponse{}, err
	}
	resp := &structpb.Struct{}
	if err := c.invoke(ctx, loginMethod, req, resp); err != nil {
		return auth.LoginResponse{}, err
	}

	body := resp.AsMap()
	out := auth.LoginResponse{
		Success: boolField(body, "success"),
		Message: stringField(body, "message"),
		Error:   stringField(body, "error"),
	}
	if data, ok := body["data"].(map[string]interface{}); ok {
		out.AccessToken = stringField(data, "accessToken")
		out.RefreshToken = stringField(data, "refreshToken")
		user, err := decodeUser(data["user"])
		if err != nil {
			return auth.LoginResponse{}, err
		}
		out.User = user
	}
	return out, nil
}

func (c *AuthClient) Register(ctx context.Context, userData map[string]interface{}) (auth.RegisterResponse, error) {
	req, err := structpb.NewStruct(userData)
	if err != nil {
		return auth.RegisterResponse{}, &auth.ServiceError{Kind: result.KindInvalidInput, Message: "Registration details are malformed", Err: err}
	}
	resp := &structpb.Struct{}
	if err := c.invoke(ctx, registerMethod, req, resp); err != nil {
		return auth.RegisterResponse{}, err
	}

	body := resp.AsMap()
	out := auth.RegisterResponse{Message: stringField(body, "message")}
	if raw, ok := body["success"].(bool); ok {
		out.Success = &raw
	}
	rawUser := body["user"]
	if rawUser == nil {
		if data, ok := body["data"].(map[string]interface{}); ok {
			rawUser = data["user"]
		}
	}
	user, err := decodeUser(rawUser)
	if err != nil {
		return auth.RegisterResponse{}, err
	}
	out.User = user
	return out, nil
}

func (c *AuthClient) Logout(ctx context.Context, refreshToken string) error {
	req, err := structpb.NewStruct(map[string]interface{}{"refreshToken": refreshToken})
	if err != nil {
		return err
	}
	return c.invoke(ctx, logoutMethod, req, &structpb.Struct{})
}

func (c *AuthClient) invoke(ctx context.Context, method string, req, resp *structpb.Struct) error {
	if c == nil || c.conn == nil {
		return errors.New("auth_client_not_configured")
	}
	if c.serviceToken != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, serviceTokenHeader, c.serviceToken)
	}
	if err := c.conn.Invoke(ctx, method, req, resp); err != nil {
		return mapStatus(err)
	}
	return nil
}

// mapStatus turns a gRPC status into an auth.ServiceError. A JSON body in the
// status message is read for its message and error fields.
func mapStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	serviceErr := &auth.ServiceError{Err: err}
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if jsonErr := json.Unmarshal([]byte(st.Message()), &body); jsonErr == nil {
		serviceErr.Message = body.Message
		serviceErr.Code = body.Error
	} else {
		serviceErr.Message = st.Message()
	}

	switch st.Code() {
	case codes.Unauthenticated, codes.PermissionDenied:
		serviceErr.Kind = result.KindInvalidCredentials
	case codes.InvalidArgument, codes.AlreadyExists, codes.FailedPrecondition:
		serviceErr.Kind = result.KindInvalidInput
	default:
		serviceErr.Kind = result.KindNetwork
	}
	return serviceErr
}

func decodeUser(raw interface{}) (*model.User, error) {
	if raw == nil {
		return nil, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var user model.User
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func stringField(body map[string]interface{}, key string) string {
	value, _ := body[key].(string)
	return value
}

func boolField(body map[string]interface{}, key string) bool {
	value, _ := body[key].(bool)
	return value
}

func dial(ctx context.Context, addr string, timeout time.Duration) (*grpc.ClientConn, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return grpc.DialContext(ctx, addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
}
