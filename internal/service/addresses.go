package service

import (
	"context"
	"errors"
	"strings"

	"github.com/iliyamo/storefront/internal/model"
	"github.com/iliyamo/storefront/internal/repository"
)

// AddressService manages the caller's shipping addresses.
type AddressService struct{ addresses AddressStore }

func NewAddressService(addresses AddressStore) *AddressService {
	return &AddressService{addresses: addresses}
}

func (s *AddressService) Create(ctx context.Context, a model.Address) (model.Address, error) {
	a.Line1 = strings.TrimSpace(a.Line1)
	a.City = strings.TrimSpace(a.City)
	a.PostalCode = strings.TrimSpace(a.PostalCode)
	a.Country = strings.TrimSpace(a.Country)
	if a.Line1 == "" || a.City == "" || a.Country == "" {
		return model.Address{}, validation("line1, city and country are required")
	}
	if err := s.addresses.Create(ctx, &a); err != nil {
		return model.Address{}, internal(err)
	}
	return a, nil
}

func (s *AddressService) List(ctx context.Context, userID uint64) ([]model.Address, error) {
	out, err := s.addresses.ListByUser(ctx, userID)
	if err != nil {
		return nil, internal(err)
	}
	return out, nil
}

func (s *AddressService) Delete(ctx context.Context, userID, id uint64) error {
	if err := s.addresses.Deactivate(ctx, userID, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return newError(KindNotFound, "address not found")
		}
		return internal(err)
	}
	return nil
}
