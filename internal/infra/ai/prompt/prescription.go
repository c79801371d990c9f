package prompt

// Prescription is the instruction sent alongside every image.
const Prescription = "Extract all text clearly from this prescription image. Output clean plain text only."
