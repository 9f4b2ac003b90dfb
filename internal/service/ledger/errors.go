package ledger

import "errors"

var (
	ErrSaleNotFound  = errors.New("sale not found")
	ErrDuplicateSale = errors.New("sale already recorded")
	ErrInvalidPaging = errors.New("invalid paging parameters")
)
