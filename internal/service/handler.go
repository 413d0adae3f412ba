package service

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"

	"github.com/kkkkikiki/pizzeria/internal/coupon"
)

// CouponServiceName is the fully-qualified name of the coupon service
const CouponServiceName = "pizzeria.coupon.v1.CouponService"

// Procedure paths, as served under the handler's path prefix
const (
	GenerateBatchProcedure = "/" + CouponServiceName + "/GenerateBatch"
	ClaimCouponProcedure   = "/" + CouponServiceName + "/ClaimCoupon"
	GetPoolProcedure       = "/" + CouponServiceName + "/GetPool"
)

// NewCouponServiceHandler builds an HTTP handler for s. It returns the path
// prefix to mount the handler on.
func NewCouponServiceHandler(s *CouponServer, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(jsonCodec{})}, opts...)

	generateBatch := connect.NewUnaryHandler(GenerateBatchProcedure, s.GenerateBatch, opts...)
	claimCoupon := connect.NewUnaryHandler(ClaimCouponProcedure, s.ClaimCoupon, opts...)
	getPool := connect.NewUnaryHandler(GetPoolProcedure, s.GetPool, opts...)

	return "/" + CouponServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case GenerateBatchProcedure:
			generateBatch.ServeHTTP(w, r)
		case ClaimCouponProcedure:
			claimCoupon.ServeHTTP(w, r)
		case GetPoolProcedure:
			getPool.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

// CouponServiceClient calls a remote CouponServer
type CouponServiceClient struct {
	generateBatch *connect.Client[coupon.BatchSpec, GenerateBatchResponse]
	claimCoupon   *connect.Client[ClaimCouponRequest, ClaimCouponResponse]
	getPool       *connect.Client[GetPoolRequest, GetPoolResponse]
}

// NewCouponServiceClient creates a client for the service at baseURL
func NewCouponServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *CouponServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(jsonCodec{})}, opts...)

	return &CouponServiceClient{
		generateBatch: connect.NewClient[coupon.BatchSpec, GenerateBatchResponse](httpClient, baseURL+GenerateBatchProcedure, opts...),
		claimCoupon:   connect.NewClient[ClaimCouponRequest, ClaimCouponResponse](httpClient, baseURL+ClaimCouponProcedure, opts...),
		getPool:       connect.NewClient[GetPoolRequest, GetPoolResponse](httpClient, baseURL+GetPoolProcedure, opts...),
	}
}

// GenerateBatch calls CouponService.GenerateBatch
func (c *CouponServiceClient) GenerateBatch(ctx context.Context, req *connect.Request[coupon.BatchSpec]) (*connect.Response[GenerateBatchResponse], error) {
	return c.generateBatch.CallUnary(ctx, req)
}

// ClaimCoupon calls CouponService.ClaimCoupon
func (c *CouponServiceClient) ClaimCoupon(ctx context.Context, req *connect.Request[ClaimCouponRequest]) (*connect.Response[ClaimCouponResponse], error) {
	return c.claimCoupon.CallUnary(ctx, req)
}

// GetPool calls CouponService.GetPool
func (c *CouponServiceClient) GetPool(ctx context.Context, req *connect.Request[GetPoolRequest]) (*connect.Response[GetPoolResponse], error) {
	return c.getPool.CallUnary(ctx, req)
}
