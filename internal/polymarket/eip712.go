// eip712.go - Native EIP-712 order signing for the Polymarket CTF
// Exchange. Produces signed orders accepted by the /order endpoint
// without shelling out to the Python client.
package polymarket

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"math/rand"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/shopspring/decimal"
)

// Polymarket CTF Exchange contract addresses (Polygon Mainnet)
const (
	PolygonChainID     = 137
	CTFExchangeAddress = "0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E"
	ZeroAddress        = "0x0000000000000000000000000000000000000000"
)

// Signature types
const (
	SignatureTypeEOA        = 0
	SignatureTypePolyProxy  = 1 // email login
	SignatureTypeGnosisSafe = 2
)

// Order sides
const (
	SideBuy  = 0
	SideSell = 1
)

// CTFOrder is an order for the CTF Exchange in contract form
type CTFOrder struct {
	Salt          *big.Int       `json:"salt"`
	Maker         common.Address `json:"maker"`
	Signer        common.Address `json:"signer"`
	Taker         common.Address `json:"taker"`
	TokenID       *big.Int       `json:"tokenId"`
	MakerAmount   *big.Int       `json:"makerAmount"`
	TakerAmount   *big.Int       `json:"takerAmount"`
	Expiration    *big.Int       `json:"expiration"`
	Nonce         *big.Int       `json:"nonce"`
	FeeRateBps    *big.Int       `json:"feeRateBps"`
	Side          uint8          `json:"side"`
	SignatureType uint8          `json:"signatureType"`
}

// SignedCTFOrder is an order with its EIP-712 signature
type SignedCTFOrder struct {
	Order     *CTFOrder `json:"order"`
	Signature string    `json:"signature"`
}

// OrderSigner builds and signs CTF Exchange orders
type OrderSigner struct {
	privateKey    *ecdsa.PrivateKey
	signerAddress common.Address
	funderAddress common.Address
	chainID       int64
	exchangeAddr  common.Address
	signatureType int
}

// NewOrderSigner creates an order signer for the given wallet
func NewOrderSigner(privateKey *ecdsa.PrivateKey, signerAddr, funderAddr common.Address, signatureType int) *OrderSigner {
	return &OrderSigner{
		privateKey:    privateKey,
		signerAddress: signerAddr,
		funderAddress: funderAddr,
		chainID:       PolygonChainID,
		exchangeAddr:  common.HexToAddress(CTFExchangeAddress),
		signatureType: signatureType,
	}
}

// CreateOrder builds an unsigned order. Both USDC and outcome shares
// use 6 decimals on-chain; maker USDC amounts are truncated (never
// rounded up) so the order can't exceed the intended budget, shares
// are rounded to 4 decimals per exchange rules.
func (s *OrderSigner) CreateOrder(tokenID string, side int, price, size decimal.Decimal) (*CTFOrder, error) {
	tokenIDInt, ok := new(big.Int).SetString(tokenID, 10)
	if !ok {
		return nil, fmt.Errorf("invalid token id: %s", tokenID)
	}

	var makerAmount, takerAmount *big.Int
	if side == SideBuy {
		// give USDC, receive shares
		makerAmount = usdcUnits(size.Mul(price))
		takerAmount = shareUnits(size)
	} else {
		// give shares, receive USDC
		makerAmount = shareUnits(size)
		takerAmount = shareUnits(size.Mul(price))
	}

	maker := s.funderAddress
	if maker == (common.Address{}) {
		maker = s.signerAddress
	}

	return &CTFOrder{
		Salt:          big.NewInt(rand.Int63()),
		Maker:         maker,
		Signer:        s.signerAddress,
		Taker:         common.HexToAddress(ZeroAddress), // public order
		TokenID:       tokenIDInt,
		MakerAmount:   makerAmount,
		TakerAmount:   takerAmount,
		Expiration:    big.NewInt(0),
		Nonce:         big.NewInt(0),
		FeeRateBps:    big.NewInt(1000),
		Side:          uint8(side),
		SignatureType: uint8(s.signatureType),
	}, nil
}

// SignOrder signs an order using EIP-712
func (s *OrderSigner) SignOrder(order *CTFOrder) (*SignedCTFOrder, error) {
	typedData := s.buildTypedData(order)

	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("failed to hash domain: %w", err)
	}

	messageHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to hash message: %w", err)
	}

	rawData := []byte(fmt.Sprintf("\x19\x01%s%s", string(domainSeparator), string(messageHash)))
	hash := crypto.Keccak256Hash(rawData)

	signature, err := crypto.Sign(hash.Bytes(), s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}
	if signature[64] < 27 {
		signature[64] += 27
	}

	return &SignedCTFOrder{
		Order:     order,
		Signature: fmt.Sprintf("0x%x", signature),
	}, nil
}

// CreateSignedOrder builds and signs an order in one call
func (s *OrderSigner) CreateSignedOrder(tokenID string, side int, price, size decimal.Decimal) (*SignedCTFOrder, error) {
	order, err := s.CreateOrder(tokenID, side, price, size)
	if err != nil {
		return nil, err
	}
	return s.SignOrder(order)
}

func (s *OrderSigner) buildTypedData(order *CTFOrder) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"Order": {
				{Name: "salt", Type: "uint256"},
				{Name: "maker", Type: "address"},
				{Name: "signer", Type: "address"},
				{Name: "taker", Type: "address"},
				{Name: "tokenId", Type: "uint256"},
				{Name: "makerAmount", Type: "uint256"},
				{Name: "takerAmount", Type: "uint256"},
				{Name: "expiration", Type: "uint256"},
				{Name: "nonce", Type: "uint256"},
				{Name: "feeRateBps", Type: "uint256"},
				{Name: "side", Type: "uint8"},
				{Name: "signatureType", Type: "uint8"},
			},
		},
		PrimaryType: "Order",
		Domain: apitypes.TypedDataDomain{
			Name:              "Polymarket CTF Exchange",
			Version:           "1",
			ChainId:           math.NewHexOrDecimal256(s.chainID),
			VerifyingContract: s.exchangeAddr.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"salt":          order.Salt.String(),
			"maker":         order.Maker.Hex(),
			"signer":        order.Signer.Hex(),
			"taker":         order.Taker.Hex(),
			"tokenId":       order.TokenID.String(),
			"makerAmount":   order.MakerAmount.String(),
			"takerAmount":   order.TakerAmount.String(),
			"expiration":    order.Expiration.String(),
			"nonce":         order.Nonce.String(),
			"feeRateBps":    order.FeeRateBps.String(),
			"side":          fmt.Sprintf("%d", order.Side),
			"signatureType": fmt.Sprintf("%d", order.SignatureType),
		},
	}
}

// usdcUnits scales a USDC amount to 6-decimal units, truncating
func usdcUnits(amount decimal.Decimal) *big.Int {
	return big.NewInt(amount.Mul(decimal.NewFromInt(1_000_000)).IntPart())
}

// shareUnits scales a share amount to 6-decimal units after rounding
// to the 4-decimal precision the exchange accepts
func shareUnits(amount decimal.Decimal) *big.Int {
	return big.NewInt(amount.Round(4).Mul(decimal.NewFromInt(1_000_000)).IntPart())
}

// ToAPIPayload converts a signed order to the /order request body.
// The signature rides inside the order object and owner is the API
// key, not the maker address.
func (o *SignedCTFOrder) ToAPIPayload(apiKey, orderType string) map[string]interface{} {
	sideStr := "BUY"
	if o.Order.Side == SideSell {
		sideStr = "SELL"
	}

	return map[string]interface{}{
		"order": map[string]interface{}{
			"salt":          o.Order.Salt.Int64(),
			"maker":         o.Order.Maker.Hex(),
			"signer":        o.Order.Signer.Hex(),
			"taker":         o.Order.Taker.Hex(),
			"tokenId":       o.Order.TokenID.String(),
			"makerAmount":   o.Order.MakerAmount.String(),
			"takerAmount":   o.Order.TakerAmount.String(),
			"expiration":    o.Order.Expiration.String(),
			"nonce":         o.Order.Nonce.String(),
			"feeRateBps":    o.Order.FeeRateBps.String(),
			"side":          sideStr,
			"signatureType": int(o.Order.SignatureType),
			"signature":     o.Signature,
		},
		"owner":     apiKey,
		"orderType": orderType, // FOK, FAK, GTC, or GTD
		"postOnly":  false,
	}
}
