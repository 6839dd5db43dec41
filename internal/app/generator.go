package app

// Canned supplier answers by rating tier. This is the placeholder for a real
// generative step: the Responder only ever takes pre-computed text, so
// swapping the generator out does not touch the submission contract.
const (
	responsePositive = "Спасибо за вашу высокую оценку! Мы рады, что наш товар соответствует вашим ожиданиям. Будем рады видеть вас снова!"
	responseNeutral  = "Благодарим за ваш отзыв. Мы ценим вашу обратную связь и работаем над улучшением наших товаров. Если у вас есть конкретные предложения, пожалуйста, сообщите нам."
	responseApology  = "Приносим извинения за то, что ваш опыт не оправдал ожиданий. Мы хотели бы узнать больше о возникших проблемах, чтобы предложить решение. Пожалуйста, свяжитесь с нашей службой поддержки."
)

// GenerateResponse maps a rating to a canned answer: 4 and up positive,
// exactly 3 neutral, below 3 an apology. Deterministic, never fails.
func GenerateResponse(rating int) string {
	switch {
	case rating >= 4:
		return responsePositive
	case rating >= 3:
		return responseNeutral
	default:
		return responseApology
	}
}
