// Command platescan reads license plates from photos with Gemini and keeps a
// local history of the results.
//
//	platescan scan photo.jpg --save
//	platescan history list
//	platescan serve
package main
