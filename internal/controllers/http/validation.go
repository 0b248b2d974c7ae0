package http

import (
	"sync"

	"campus-takeout/internal/domain"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var registerOnce sync.Once

// RegisterValidators adds the order-specific tags to gin's binding engine.
func RegisterValidators() error {
	var err error
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		if err = v.RegisterValidation("order_status", validOrderStatus); err != nil {
			return
		}
		err = v.RegisterValidation("payment_method", validPaymentMethod)
	})
	return err
}

func validOrderStatus(fl validator.FieldLevel) bool {
	return domain.OrderStatus(fl.Field().String()).Valid()
}

func validPaymentMethod(fl validator.FieldLevel) bool {
	return domain.PaymentMethod(fl.Field().String()).Valid()
}
